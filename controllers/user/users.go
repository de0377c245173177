package userControllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/volkanaggunlu/ecommerce-api/models"
	"gorm.io/gorm"
)

type UserUpdateInput struct {
	Name       string `json:"name"`
	Email      string `json:"email" binding:"omitempty,email"`
	Phone      string `json:"phone"`
	Country    string `json:"country"`
	City       string `json:"city"`
	District   string `json:"district"`
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
}

// GET /user/me
func GetUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		var user models.User
		if err := db.First(&user, "id = ?", userID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// PUT /user/me
func UpdateUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		var user models.User
		if err := db.First(&user, "id = ?", userID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		var input UserUpdateInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if input.Name != "" {
			user.Name = input.Name
		}
		if input.Email != "" {
			user.Email = input.Email
		}
		if input.Phone != "" {
			user.Phone = input.Phone
		}
		if input.Country != "" {
			user.Address.Country = input.Country
		}
		if input.City != "" {
			user.Address.City = input.City
		}
		if input.District != "" {
			user.Address.District = input.District
		}
		if input.Street != "" {
			user.Address.Street = input.Street
		}
		if input.PostalCode != "" {
			user.Address.PostalCode = input.PostalCode
		}

		if err := db.Save(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// GET /admin/users
func GetAllUsers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var users []models.User
		if err := db.Find(&users).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
			return
		}
		c.JSON(http.StatusOK, users)
	}
}
