package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xxxsen/relnote/internal/model"
	"github.com/xxxsen/relnote/internal/pkg/errcode"
	"github.com/xxxsen/relnote/internal/pkg/response"
	"github.com/xxxsen/relnote/internal/service"
)

// SearchHandler serves both search routes. Callers without an identity get
// an empty list, and internal failures degrade to an empty list as well.
type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type textSearchRequest struct {
	SearchText string `json:"searchText"`
	MaxResults int    `json:"maxResults"`
}

type noteSearchRequest struct {
	NoteID     string   `json:"noteId"`
	MaxResults int      `json:"maxResults"`
	Threshold  *float64 `json:"threshold"`
}

func (h *SearchHandler) Text(c *gin.Context) {
	var req textSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	userID := getUserID(c)
	if userID == "" {
		response.Summaries(c, nil)
		return
	}
	items, err := h.search.TextSearch(c.Request.Context(), userID, req.SearchText, req.MaxResults)
	h.reply(c, items, err)
}

func (h *SearchHandler) Note(c *gin.Context) {
	var req noteSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	userID := getUserID(c)
	if userID == "" {
		response.Summaries(c, nil)
		return
	}
	items, err := h.search.NoteSearch(c.Request.Context(), userID, req.NoteID, req.MaxResults, req.Threshold)
	h.reply(c, items, err)
}

func (h *SearchHandler) reply(c *gin.Context, items []model.NoteSummary, err error) {
	if err != nil {
		requestLogger(c).Error("search failed, return empty result", zap.Error(err))
		items = nil
	}
	response.Summaries(c, items)
}
