package models

import "time"

// UploadContext is the caller-supplied context of an upload
type UploadContext struct {
	Country string `json:"country,omitempty" validate:"omitempty,max=64"`
	ERP     string `json:"erp,omitempty" validate:"omitempty,max=128"`
}

// Upload is a stored raw payload awaiting analysis.
// The payload lives either in object storage (ObjectPath) or inline (RawData).
type Upload struct {
	ID         string    `json:"id"`
	Format     string    `json:"format"`
	RawData    []byte    `json:"-"`
	ObjectPath string    `json:"objectPath,omitempty"`
	RowsParsed int       `json:"rowsParsed"`
	Country    string    `json:"country,omitempty"`
	ERP        string    `json:"erp,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
