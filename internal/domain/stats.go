package domain

import "time"

// Stats is the dashboard summary pushed to live subscribers
type Stats struct {
	CarsByStatus    map[CarStatus]int `json:"cars_by_status"`
	TotalCars       int               `json:"total_cars"`
	InventoryValue  int64             `json:"inventory_value"`
	OpenInquiries   int               `json:"open_inquiries"`
	ActivitiesToday int               `json:"activities_today"`
	GeneratedAt     time.Time         `json:"generated_at"`
}
