package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tableside/internal/models"
	"tableside/internal/storage"
	"tableside/internal/transcribe"
)

// maxAudioBytes bounds one uploaded audio sample.
const maxAudioBytes = 10 << 20

// CreateOrderRequest is the body for POST /api/v1/orders.
type CreateOrderRequest struct {
	TableID    int  `json:"table_id" binding:"required"`
	SeatNumber *int `json:"seat_number"`
	Items      []struct {
		Name  string `json:"name" binding:"required"`
		Notes string `json:"notes"`
	} `json:"items" binding:"required"`
}

// UpdateStatusRequest is the body for PATCH /api/v1/orders/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// FlagOrderRequest is the body for POST /api/v1/orders/:id/flag.
type FlagOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// TranscribeResponse is returned by POST /api/v1/transcribe.
type TranscribeResponse struct {
	Text          string      `json:"text"`
	Confidence    float64     `json:"confidence"`
	Provider      string      `json:"provider,omitempty"`
	DietaryAlerts interface{} `json:"dietary_alerts"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make([]models.OrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = models.OrderItem{Name: item.Name, Notes: item.Notes}
	}

	order, err := s.manager.CreateOrder(c.Request.Context(), req.TableID, req.SeatNumber, items)
	if err != nil {
		// Without a returned order the client must assume nothing was
		// recorded and retry.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order was not recorded, please retry: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (s *Server) GetOrder(c *gin.Context) {
	order, err := s.manager.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) GetActiveOrders(c *gin.Context) {
	tableID := 0
	if raw := c.Query("table_id"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "table_id must be a number"})
			return
		}
		tableID = parsed
	}

	orders, err := s.manager.GetActiveOrders(c.Request.Context(), tableID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.manager.UpdateStatus(c.Request.Context(), c.Param("id"), models.OrderStatus(req.Status))
	if err != nil {
		var invalid *models.InvalidTransitionError
		switch {
		case errors.As(err, &invalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
		case errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, order)
}

func (s *Server) FlagOrder(c *gin.Context) {
	var req FlagOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.manager.FlagOrder(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) ResolveFlag(c *gin.Context) {
	order, err := s.manager.ResolveFlag(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

// Transcribe accepts one audio sample (multipart field "audio" or the raw
// request body) plus table/seat context, runs it through the provider chain
// and annotates the text with dietary alerts for that seat.
func (s *Server) Transcribe(c *gin.Context) {
	tableID, err := strconv.Atoi(c.DefaultQuery("table_id", c.PostForm("table_id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "table_id is required and must be a number"})
		return
	}
	seatNumber := 0
	if raw := firstNonEmpty(c.Query("seat_number"), c.PostForm("seat_number")); raw != "" {
		if seatNumber, err = strconv.Atoi(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "seat_number must be a number"})
			return
		}
	}

	audio, mimeType, err := readAudio(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.gateway.Transcribe(c.Request.Context(), transcribe.Request{
		Audio:    audio,
		MimeType: mimeType,
	})
	if err != nil {
		var unavailable *transcribe.UnavailableError
		if errors.As(err, &unavailable) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":      "no confident transcription was produced; retry or enter the order manually",
				"text":       unavailable.BestText,
				"confidence": unavailable.BestConfidence,
				"provider":   unavailable.BestProvider,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	alerts, err := s.manager.CheckDietary(c.Request.Context(), tableID, seatNumber, result.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, TranscribeResponse{
		Text:          result.Text,
		Confidence:    result.Confidence,
		Provider:      result.Provider,
		DietaryAlerts: alerts,
	})
}

func readAudio(c *gin.Context) ([]byte, string, error) {
	if file, err := c.FormFile("audio"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, "", errors.New("failed to open uploaded audio")
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxAudioBytes))
		if err != nil {
			return nil, "", errors.New("failed to read uploaded audio")
		}
		return data, file.Header.Get("Content-Type"), nil
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAudioBytes))
	if err != nil || len(data) == 0 {
		return nil, "", errors.New("request carries no audio")
	}
	return data, c.ContentType(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
