package entity

// QueryType 响应里的 query_type：意图标签之外还有 refused
const QueryTypeRefused = "refused"

// Turn 一轮对话
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Citation 答案引用的来源切片
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename,omitempty"`
	Page       int     `json:"page"`
	Excerpt    string  `json:"excerpt"`
	Score      float64 `json:"score"`
}

// ClaimCheck 单句支撑判定
type ClaimCheck struct {
	Sentence  string   `json:"sentence"`
	Supported bool     `json:"supported"`
	Overlap   float64  `json:"overlap"`
	ChunkIDs  []string `json:"chunk_ids,omitempty"`
}

// ConfidenceReport 答案可靠性报告
type ConfidenceReport struct {
	Confidence           float64      `json:"confidence"`
	EvidenceScore        float64      `json:"evidence_score"`
	InsufficientEvidence bool         `json:"insufficient_evidence"`
	Claims               []ClaimCheck `json:"claims,omitempty"`
}

// UnsupportedClaims 未获支撑的句子
func (r *ConfidenceReport) UnsupportedClaims() []string {
	var out []string
	for _, c := range r.Claims {
		if !c.Supported {
			out = append(out, c.Sentence)
		}
	}
	return out
}
