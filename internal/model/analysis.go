package model

// ExtractedMetadata holds the descriptive fields the model extracts from
// the document itself.
type ExtractedMetadata struct {
	Title        string `json:"title"`
	DocumentType string `json:"document_type"`
	PageCount    int    `json:"page_count"`
}

// DocumentMetadata is ExtractedMetadata plus the locally computed content
// fingerprint. The fingerprint never comes from the provider.
type DocumentMetadata struct {
	Title        string `json:"title"`
	DocumentType string `json:"document_type"`
	PageCount    int    `json:"page_count"`
	SHA256Hash   string `json:"sha256_hash"`
}

// AnalysisResult is the terminal result payload of a completed job.
// GeminiFileName references the provider-side artifact for follow-up
// queries; the artifact may expire and must be re-resolved by name.
type AnalysisResult struct {
	JSONData       string           `json:"jsonData"`
	MarkdownData   string           `json:"markdownData"`
	Metadata       DocumentMetadata `json:"metadata"`
	GeminiFileName string           `json:"geminiFileName"`
	ArchiveURL     string           `json:"archiveUrl,omitempty"`
}
