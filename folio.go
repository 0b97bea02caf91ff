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

package folio

import (
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/folioworks/folio/config"
	"github.com/folioworks/folio/database"
	redis_db "github.com/folioworks/folio/internal/redis-db"
)

// Folio is the main struct for the projection pipeline. It owns the
// datasource for both the authoritative tables and the outboxes, and a
// Redis client used to serialize rebuilds.
type Folio struct {
	datasource database.IDataSource
	redis      redis.UniversalClient
	projector  *Projector
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewFolio initializes a new instance of Folio with the provided datasource.
// It fetches the configuration and initializes the Redis client and the
// projector registry.
func NewFolio(db database.IDataSource) (*Folio, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	return NewFolioWithDeps(db, redisClient.Client()), nil
}

// NewFolioWithDeps wires a Folio from explicit dependencies. Useful when the
// caller manages its own Redis client, and for tests.
func NewFolioWithDeps(db database.IDataSource, redisClient redis.UniversalClient) *Folio {
	newFolio := &Folio{datasource: db, redis: redisClient}
	newFolio.projector = NewProjector(db)
	return newFolio
}
