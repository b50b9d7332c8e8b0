// Package storage is the persistence collaborator for orders and resident
// dietary data. Nothing here knows about broadcasting; callers persist first
// and announce after.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"tableside/internal/dietary"
	"tableside/internal/models"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Store wraps the database connection. It is passed by reference; there is
// no package-level handle.
type Store struct {
	db *gorm.DB
}

// Open initializes the database connection, runs migrations and seeds
// default data.
func Open(dbPath string) (*Store, error) {
	db, err := gorm.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.DietaryFlag{},
		&models.Resident{},
		&models.DietaryRestriction{},
	)

	s := &Store{db: db}
	s.seedDefaultData()
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveOrder persists an order with its items and dietary flags.
func (s *Store) SaveOrder(ctx context.Context, order *models.Order) error {
	if err := s.db.Save(order).Error; err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.UUID, err)
	}
	return nil
}

// LoadOrder fetches one order by its public ID.
func (s *Store) LoadOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.Preload("Items").Preload("DietaryFlags").
		Where("uuid = ?", id).First(&order).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	return &order, nil
}

// ActiveOrders lists non-completed orders, optionally scoped to one table.
// The read reflects the last committed write; no caching.
func (s *Store) ActiveOrders(ctx context.Context, tableID int) ([]models.Order, error) {
	query := s.db.Preload("Items").Preload("DietaryFlags").
		Where("status <> ?", string(models.OrderStatusCompleted))
	if tableID > 0 {
		query = query.Where("table_id = ?", tableID)
	}

	var orders []models.Order
	if err := query.Order("created_at").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list active orders: %w", err)
	}
	return orders, nil
}

// ResidentRestrictions returns the known restrictions for whoever sits at
// the given table seat. A seat of zero matches the whole table.
func (s *Store) ResidentRestrictions(ctx context.Context, tableID, seatNumber int) ([]dietary.Restriction, error) {
	query := s.db.Preload("Restrictions").Where("table_id = ?", tableID)
	if seatNumber > 0 {
		query = query.Where("seat_number = ?", seatNumber)
	}

	var residents []models.Resident
	if err := query.Find(&residents).Error; err != nil {
		return nil, fmt.Errorf("failed to look up residents for table %d: %w", tableID, err)
	}

	var restrictions []dietary.Restriction
	for _, resident := range residents {
		for _, r := range resident.Restrictions {
			restrictions = append(restrictions, dietary.Restriction{
				ResidentName: resident.Name,
				Name:         r.Name,
			})
		}
	}
	return restrictions, nil
}

// seedDefaultData ensures essential data exists in the database
func (s *Store) seedDefaultData() {
	var residentCount int64
	s.db.Model(&models.Resident{}).Count(&residentCount)
	if residentCount > 0 {
		return
	}

	defaultResidents := []models.Resident{
		{
			Name: "Margaret Hill", TableID: 5, SeatNumber: 2,
			Restrictions: []models.DietaryRestriction{{Name: "No nuts"}},
		},
		{
			Name: "Edward Briggs", TableID: 5, SeatNumber: 1,
			Restrictions: []models.DietaryRestriction{{Name: "Gluten-free"}, {Name: "Low sodium"}},
		},
		{
			Name: "Alice Monroe", TableID: 3, SeatNumber: 1,
			Restrictions: []models.DietaryRestriction{{Name: "Diabetic"}},
		},
	}
	for _, resident := range defaultResidents {
		s.db.Create(&resident)
	}
}
