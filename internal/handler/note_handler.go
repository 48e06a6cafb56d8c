package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/relnote/internal/pkg/errcode"
	"github.com/xxxsen/relnote/internal/pkg/response"
	"github.com/xxxsen/relnote/internal/service"
)

type NoteHandler struct {
	notes *service.NoteService
}

func NewNoteHandler(notes *service.NoteService) *NoteHandler {
	return &NoteHandler{notes: notes}
}

type noteRequest struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Comment string `json:"comment"`
	URL     string `json:"url"`
}

func (r noteRequest) input() service.NoteInput {
	return service.NoteInput{
		Title:   r.Title,
		Snippet: r.Snippet,
		Comment: r.Comment,
		URL:     r.URL,
	}
}

func (h *NoteHandler) Create(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	ctx := c.Request.Context()
	userID := getUserID(c)
	if name := getUserName(c); name != "" {
		if err := h.notes.EnsureOwner(ctx, userID, name); err != nil {
			handleError(c, err)
			return
		}
	}
	note, err := h.notes.Create(ctx, userID, req.input())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, note)
}

func (h *NoteHandler) List(c *gin.Context) {
	notes, err := h.notes.List(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, notes)
}

func (h *NoteHandler) Get(c *gin.Context) {
	note, err := h.notes.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, note)
}

func (h *NoteHandler) Update(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	note, err := h.notes.Update(c.Request.Context(), getUserID(c), c.Param("id"), req.input())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, note)
}

func (h *NoteHandler) Delete(c *gin.Context) {
	if err := h.notes.Delete(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
