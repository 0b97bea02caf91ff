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

package api

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	folio "github.com/folioworks/folio"
)

// Api is the monitoring surface for the projection pipeline. It exposes
// read-oriented endpoints plus the manual replay trigger; it is not a public
// API and binds to the monitoring port only.
type Api struct {
	folio  *folio.Folio
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.GET("/outbox/:projection/stats", a.GetOutboxStats)
	router.GET("/outbox/:projection/events/:id", a.InspectEvent)
	router.POST("/outbox/:projection/events/:id/replay", a.ReplayEvent)
	router.POST("/outbox/:projection/reclaim", a.Reclaim)

	router.GET("/projections/:projection/status", a.GetProjectionStatus)

	return a.router
}

func NewAPI(f *folio.Folio) *Api {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(otelgin.Middleware("folio-monitoring"))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return &Api{folio: f, router: r}
}
