package api

import "github.com/xaenox/finbot/internal/models"

type UploadResponse struct {
	Results []models.AnalysisResult `json:"results"`
}

type ChatRequest struct {
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
	ThreadID   string `json:"thread_id,omitempty"`
}

type MultiChatRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Question    string   `json:"question"`
	ThreadID    string   `json:"thread_id,omitempty"`
}

type ChatResponse struct {
	Answer     string `json:"answer"`
	DocumentID string `json:"document_id,omitempty"`
}

type ThreadsResponse struct {
	Threads []models.Thread `json:"threads"`
}

type CreateThreadResponse struct {
	ThreadID string `json:"thread_id"`
}

type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

type DocumentsResponse struct {
	Documents []models.AnalysisResult `json:"documents"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
