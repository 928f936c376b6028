package models

// ExportRequest selects the format, range and categories of an export.
type ExportRequest struct {
	Format              string `json:"format"`
	DateRange           string `json:"dateRange"`
	IncludePersonalInfo bool   `json:"includePersonalInfo"`
	IncludeTransactions bool   `json:"includeTransactions"`
	IncludeCategories   bool   `json:"includeCategories"`
	IncludeSettings     bool   `json:"includeSettings"`
	IncludeQAHistory    bool   `json:"includeQAHistory"`
}

// ExportPreview is the size estimate for an export request.
type ExportPreview struct {
	EstimatedRecords int      `json:"estimatedRecords"`
	EstimatedSize    string   `json:"estimatedSize"`
	Categories       []string `json:"categories"`
	DateRange        string   `json:"dateRange"`
}

// Export is the outcome of an export request. The download token is
// redeemable once, before ExpiresAt.
type Export struct {
	ExportID      string       `json:"exportId"`
	Status        ExportStatus `json:"status"`
	FileSize      string       `json:"fileSize,omitempty"`
	DownloadToken string       `json:"downloadToken,omitempty"`
	DownloadPath  string       `json:"downloadPath,omitempty"`
	ExpiresAt     *Timestamp   `json:"expiresAt,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// RetentionSettingsInput is a partial retention settings update.
type RetentionSettingsInput struct {
	AutoDeleteOldData *bool   `json:"autoDeleteOldData,omitempty"`
	RetentionPeriod   *string `json:"retentionPeriod,omitempty"`
}

// RetentionSettings is the user-facing retention configuration.
type RetentionSettings struct {
	AutoDeleteOldData  bool       `json:"autoDeleteOldData"`
	RetentionPeriod    string     `json:"retentionPeriod"`
	LastPurgeDate      *Timestamp `json:"lastPurgeDate,omitempty"`
	NextScheduledPurge *Timestamp `json:"nextScheduledPurge,omitempty"`
}

// PurgeHistory lists recent purge reports, oldest first.
type PurgeHistory struct {
	Items []PurgeReport `json:"items"`
}

// PurgeReport describes one purge pass.
type PurgeReport struct {
	PurgeDate           Timestamp `json:"purgeDate"`
	ItemsDeleted        int       `json:"itemsDeleted"`
	CategoriesProcessed []string  `json:"categoriesProcessed"`
	CategoriesFailed    []string  `json:"categoriesFailed"`
	SpaceFreed          int64     `json:"spaceFreed"`
	SpaceFreedHuman     string    `json:"spaceFreedHuman"`
	Errors              []string  `json:"errors"`
	NextScheduledPurge  Timestamp `json:"nextScheduledPurge"`
	Manual              bool      `json:"manual"`
}
