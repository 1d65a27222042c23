package dto

import "github.com/google/uuid"

type CreateReportRequest struct {
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

type ReportResponse struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Location     string    `json:"location"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	Status       string    `json:"status"`
	StatusLabel  string    `json:"status_label"`
	ImageURL     *string   `json:"image_url"`
	OwnerName    *string   `json:"owner_name,omitempty"`
	QuickActions []string  `json:"quick_actions,omitempty"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
}

type CreateReportResponse struct {
	Report   ReportResponse `json:"report"`
	Warnings []string       `json:"warnings,omitempty"`
}

type ReportListResponse struct {
	Reports []ReportResponse `json:"reports"`
	Counts  map[string]int   `json:"counts"`
	Total   int              `json:"total"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}
