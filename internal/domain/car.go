// Package domain holds the dealership's document types (cars, images, activities,
// users, inquiries, settings) together with their validation, filtering and
// pagination rules. It has no knowledge of storage or transport.
package domain

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// CarStatus is the sales state of a listing
type CarStatus string

const (
	// StatusAvailable cars are shown on the public site
	StatusAvailable CarStatus = "available"
	// StatusReserved cars are shown with a reserved badge
	StatusReserved CarStatus = "reserved"
	// StatusSold cars are hidden from the public explorer
	StatusSold CarStatus = "sold"
)

// Enumerations accepted for the categorical car attributes
var (
	CarStatuses   = []CarStatus{StatusAvailable, StatusReserved, StatusSold}
	BodyTypes     = []string{"sedan", "suv", "truck", "coupe", "hatchback", "convertible", "van", "wagon"}
	FuelTypes     = []string{"petrol", "diesel", "hybrid", "electric"}
	Transmissions = []string{"automatic", "manual"}
)

// PublicStatuses are the statuses visible on the public site
var PublicStatuses = []string{string(StatusAvailable), string(StatusReserved)}

const (
	maxNameLength        = 64
	maxDescriptionLength = 10000
	minYear              = 1900
)

// Car is a vehicle listing
type Car struct {
	ID           uuid.UUID `json:"id"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	Price        int64     `json:"price"`
	Mileage      int       `json:"mileage"`
	BodyType     string    `json:"body_type"`
	FuelType     string    `json:"fuel_type"`
	Transmission string    `json:"transmission"`
	Color        string    `json:"color"`
	Description  string    `json:"description"`
	Featured     bool      `json:"featured"`
	Status       CarStatus `json:"status"`
	Images       []Image   `json:"images"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	CreatedBy    string    `json:"created_by,omitempty"`
}

// Title returns the display title, e.g. "2021 Toyota Corolla"
func (c *Car) Title() string {
	return strings.TrimSpace(strings.Join([]string{strconv.Itoa(c.Year), c.Make, c.Model}, " "))
}

// Cover returns the first image of the car, if any
func (c *Car) Cover() (Image, bool) {
	if len(c.Images) == 0 {
		return Image{}, false
	}
	return c.Images[0], true
}

// IsPublic reports whether the car is visible on the public site
func (c *Car) IsPublic() bool {
	return c.Status == StatusAvailable || c.Status == StatusReserved
}

// Image is a photo attached to a car
type Image struct {
	ID          uuid.UUID `json:"id"`
	CarID       uuid.UUID `json:"car_id"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

// CarInput is the writable subset of a Car, as submitted by the admin form or API
type CarInput struct {
	Make         string    `json:"make" yaml:"make"`
	Model        string    `json:"model" yaml:"model"`
	Year         int       `json:"year" yaml:"year"`
	Price        int64     `json:"price" yaml:"price"`
	Mileage      int       `json:"mileage" yaml:"mileage"`
	BodyType     string    `json:"body_type" yaml:"body_type"`
	FuelType     string    `json:"fuel_type" yaml:"fuel_type"`
	Transmission string    `json:"transmission" yaml:"transmission"`
	Color        string    `json:"color" yaml:"color"`
	Description  string    `json:"description" yaml:"description"`
	Featured     bool      `json:"featured" yaml:"featured"`
	Status       CarStatus `json:"status" yaml:"status"`
}

// Normalize trims whitespace, lowercases the enumerated fields and defaults the status
func (in *CarInput) Normalize() {
	in.Make = strings.TrimSpace(in.Make)
	in.Model = strings.TrimSpace(in.Model)
	in.Color = strings.TrimSpace(in.Color)
	in.Description = strings.TrimSpace(in.Description)
	in.BodyType = strings.ToLower(strings.TrimSpace(in.BodyType))
	in.FuelType = strings.ToLower(strings.TrimSpace(in.FuelType))
	in.Transmission = strings.ToLower(strings.TrimSpace(in.Transmission))
	in.Status = CarStatus(strings.ToLower(strings.TrimSpace(string(in.Status))))
	if in.Status == "" {
		in.Status = StatusAvailable
	}
}

// Validate normalizes the input and checks it. now bounds the model year.
func (in *CarInput) Validate(now time.Time) *ValidationErrors {
	in.Normalize()
	errs := NewValidationErrors()

	requireName(errs, "make", in.Make)
	requireName(errs, "model", in.Model)

	if in.Year < minYear || in.Year > now.Year()+1 {
		errs.Add("year", "must be between 1900 and next year")
	}
	if in.Price < 0 {
		errs.Add("price", "must not be negative")
	}
	if in.Mileage < 0 {
		errs.Add("mileage", "must not be negative")
	}
	if in.BodyType != "" && !contains(BodyTypes, in.BodyType) {
		errs.Add("body_type", "is not a known body type")
	}
	if in.FuelType != "" && !contains(FuelTypes, in.FuelType) {
		errs.Add("fuel_type", "is not a known fuel type")
	}
	if in.Transmission != "" && !contains(Transmissions, in.Transmission) {
		errs.Add("transmission", "is not a known transmission")
	}
	if !validStatus(in.Status) {
		errs.Add("status", "must be available, reserved or sold")
	}
	if utf8.RuneCountInString(in.Color) > maxNameLength {
		errs.Add("color", "is too long")
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLength {
		errs.Add("description", "is too long")
	}

	return errs
}

// Apply copies the input onto car, leaving identity and timestamps untouched
func (in CarInput) Apply(car *Car) {
	car.Make = in.Make
	car.Model = in.Model
	car.Year = in.Year
	car.Price = in.Price
	car.Mileage = in.Mileage
	car.BodyType = in.BodyType
	car.FuelType = in.FuelType
	car.Transmission = in.Transmission
	car.Color = in.Color
	car.Description = in.Description
	car.Featured = in.Featured
	car.Status = in.Status
}

// InputFromCar returns the writable fields of car, e.g. to prefill an edit form
func InputFromCar(car *Car) CarInput {
	return CarInput{
		Make:         car.Make,
		Model:        car.Model,
		Year:         car.Year,
		Price:        car.Price,
		Mileage:      car.Mileage,
		BodyType:     car.BodyType,
		FuelType:     car.FuelType,
		Transmission: car.Transmission,
		Color:        car.Color,
		Description:  car.Description,
		Featured:     car.Featured,
		Status:       car.Status,
	}
}

// DiffCar returns the writable fields that differ between before and after,
// keyed by JSON field name with [old, new] values.
func DiffCar(before, after *Car) map[string][2]any {
	changes := make(map[string][2]any)
	add := func(field string, old, new any) {
		if old != new {
			changes[field] = [2]any{old, new}
		}
	}

	add("make", before.Make, after.Make)
	add("model", before.Model, after.Model)
	add("year", before.Year, after.Year)
	add("price", before.Price, after.Price)
	add("mileage", before.Mileage, after.Mileage)
	add("body_type", before.BodyType, after.BodyType)
	add("fuel_type", before.FuelType, after.FuelType)
	add("transmission", before.Transmission, after.Transmission)
	add("color", before.Color, after.Color)
	add("description", before.Description, after.Description)
	add("featured", before.Featured, after.Featured)
	add("status", string(before.Status), string(after.Status))

	return changes
}

func requireName(errs *ValidationErrors, field, value string) {
	switch {
	case value == "":
		errs.Add(field, "is required")
	case utf8.RuneCountInString(value) > maxNameLength:
		errs.Add(field, "is too long")
	}
}

func validStatus(s CarStatus) bool {
	for _, status := range CarStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
