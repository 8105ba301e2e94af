package models

// Role identifies the author of a transcript message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Thread represents a server-tracked conversation grouping documents and messages
type Thread struct {
	ID           string    `json:"thread_id"`
	Title        string    `json:"title"`
	CreatedAt    Timestamp `json:"created_at"`
	UpdatedAt    Timestamp `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Message is one entry of a thread transcript
type Message struct {
	ID        MessageID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`

	// Seq orders locally produced messages within a thread. Messages
	// hydrated from the backend carry zero.
	Seq uint64 `json:"-"`
}

// Summary is the part of an analysis describing the document as a whole
type Summary struct {
	TotalTransactions int      `json:"total_transactions,omitempty"`
	TotalAmount       float64  `json:"total_amount,omitempty"`
	KeyInsights       []string `json:"key_insights"`
}

// Anomaly is a finding flagged by the backend's risk analysis
type Anomaly struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	RiskLevel   string  `json:"risk_level"`
	Confidence  float64 `json:"confidence"`
}

// AnalysisResult represents the backend's analysis of one uploaded document
type AnalysisResult struct {
	DocumentID      string    `json:"document_id"`
	Filename        string    `json:"filename"`
	DocumentType    string    `json:"document_type"`
	ProcessedAt     Timestamp `json:"processed_at"`
	Summary         Summary   `json:"summary"`
	Anomalies       []Anomaly `json:"anomalies,omitempty"`
	RiskScore       float64   `json:"risk_score"`
	Recommendations []string  `json:"recommendations"`
}

// ViewMode is the per-thread presentation flag
type ViewMode string

const (
	ViewUpload ViewMode = "upload"
	ViewChat   ViewMode = "chat"
)
