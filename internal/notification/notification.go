/*
Copyright 2025 Folio Works Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/folioworks/folio/internal/request"
	"github.com/sirupsen/logrus"

	"github.com/folioworks/folio/config"
)

// SlackNotification sends an error message to the configured Slack webhook.
// Used by the pipeline for events an operator should see: rebuild failures
// and rows that exhaust their replay budget.
func SlackNotification(err error) {
	data := json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{
				"type": "header",
				"text": {
					"type": "plain_text",
					"text": "Error From Folio 🐞",
					"emoji": true
				}
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Error:*\n%v"
					}
				]
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Time:*\n%v"
					}
				]
			}
		]
	}`, err.Error(), time.Now().Format(time.RFC822)))

	conf, err := config.Fetch()
	if err != nil {
		log.Println(err)
		return
	}

	payload, err := request.ToJsonReq(&data)
	if err != nil {
		log.Println(err)
		return
	}

	req, err := http.NewRequest("POST", conf.Notification.Slack.WebhookUrl, payload)
	if err != nil {
		log.Println(err)
		return
	}

	var response map[string]interface{}
	_, err = request.Call(req, &response)
	if err != nil {
		log.Println(err)
	}
}

// WebhookNotification posts an arbitrary event payload to the configured
// generic webhook, with any configured headers attached.
func WebhookNotification(event string, payload interface{}) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	body, err := request.ToJsonReq(map[string]interface{}{
		"event":   event,
		"payload": payload,
		"time":    time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", conf.Notification.Webhook.Url, body)
	if err != nil {
		return err
	}
	for k, v := range conf.Notification.Webhook.Headers {
		req.Header.Set(k, v)
	}

	var response map[string]interface{}
	_, err = request.Call(req, &response)
	return err
}

// NotifyError logs the error and, when Slack is configured, reports it
// asynchronously so callers are never blocked on the webhook.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			log.Println(err)
			return
		}

		if conf.Notification.Slack.WebhookUrl != "" {
			SlackNotification(systemError)
		}
	}(systemError)
}
