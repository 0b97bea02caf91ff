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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/folioworks/folio/model"
)

func validProjection(projection string) bool {
	return projection == model.ProjectionSearch || projection == model.ProjectionChronicle
}

func (a Api) GetOutboxStats(c *gin.Context) {
	projection := c.Param("projection")
	if !validProjection(projection) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown projection"})
		return
	}
	stats, err := a.folio.OutboxStats(c.Request.Context(), projection)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a Api) InspectEvent(c *gin.Context) {
	projection := c.Param("projection")
	if !validProjection(projection) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown projection"})
		return
	}
	detail, err := a.folio.InspectEvent(c.Request.Context(), projection, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if detail == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

type replayRequest struct {
	ReplayedBy string `json:"replayed_by" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}

func (a Api) ReplayEvent(c *gin.Context) {
	projection := c.Param("projection")
	if !validProjection(projection) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown projection"})
		return
	}
	var req replayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	replayed, err := a.folio.Replay(c.Request.Context(), projection, c.Param("id"), req.ReplayedBy, req.Reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !replayed {
		c.JSON(http.StatusConflict, gin.H{"error": "event is not in a replayable state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"replayed": true})
}

func (a Api) Reclaim(c *gin.Context) {
	projection := c.Param("projection")
	if !validProjection(projection) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown projection"})
		return
	}
	requeued, failed, err := a.folio.Reclaim(c.Request.Context(), projection)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requeued": requeued, "failed": failed})
}

func (a Api) GetProjectionStatus(c *gin.Context) {
	projection := c.Param("projection")
	if !validProjection(projection) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown projection"})
		return
	}
	status, err := a.folio.ProjectionStatus(c.Request.Context(), projection)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no rebuild recorded for projection"})
		return
	}
	c.JSON(http.StatusOK, status)
}
