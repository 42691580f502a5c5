package database

import (
	"gorm.io/gorm"

	"github.com/shikshacom/shiksha/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.RoleAssignment{},
		&models.EmailVerification{},
		&models.AuthEvent{},
		&models.Session{},
		&models.Course{},
		&models.Order{},
		&models.Payment{},
		&models.Enrollment{},
	)
}

// SeedData populates the closed role enumeration. Role rows are created once
// and never removed; re-running the seed is a no-op.
func SeedData(db *gorm.DB) error {
	roles := []models.Role{
		{
			BaseModel:   models.BaseModel{ID: string(models.RoleGuest)},
			Name:        models.RoleGuest,
			Description: "Default role granted on signup",
			IsSystem:    true,
		},
		{
			BaseModel:   models.BaseModel{ID: string(models.RoleStudent)},
			Name:        models.RoleStudent,
			Description: "Enrolled student, granted by payment settlement",
			IsSystem:    true,
		},
		{
			BaseModel:   models.BaseModel{ID: string(models.RoleTeacher)},
			Name:        models.RoleTeacher,
			Description: "Course teacher, granted by admin approval",
			IsSystem:    true,
		},
		{
			BaseModel:   models.BaseModel{ID: string(models.RoleAdmin)},
			Name:        models.RoleAdmin,
			Description: "Platform administrator",
			IsSystem:    true,
		},
	}

	for _, role := range roles {
		if err := db.Where(models.Role{Name: role.Name}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return err
		}
	}

	return nil
}
