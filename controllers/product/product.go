package productControllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/volkanaggunlu/ecommerce-api/models"
	"gorm.io/gorm"
)

type BundleItemInput struct {
	SubProductID uint `json:"sub_product_id" binding:"required"`
	Quantity     int  `json:"quantity"`
}

type ProductInput struct {
	Name            string            `json:"name" binding:"required"`
	Description     string            `json:"description"`
	Brand           string            `json:"brand"`
	Price           float64           `json:"price" binding:"required,gt=0"`
	DiscountedPrice *float64          `json:"discounted_price"`
	Image           string            `json:"image"`
	Stock           int               `json:"stock"`
	TaxRate         int               `json:"tax_rate"`
	StockMountID    string            `json:"stockmount_id"`
	IsSubVariant    bool              `json:"is_sub_variant"`
	IsBundle        bool              `json:"is_bundle"`
	BundleItems     []BundleItemInput `json:"bundle_items"`
	CategoryIDs     []uint            `json:"category_ids"`
}

// POST /admin/products
func CreateProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input ProductInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.IsBundle && len(input.BundleItems) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bundle needs at least one component"})
			return
		}

		product := models.Product{
			Name:            input.Name,
			Description:     input.Description,
			Brand:           input.Brand,
			Price:           input.Price,
			DiscountedPrice: input.DiscountedPrice,
			Image:           input.Image,
			Stock:           input.Stock,
			TaxRate:         input.TaxRate,
			StockMountID:    input.StockMountID,
			IsSubVariant:    input.IsSubVariant,
			IsBundle:        input.IsBundle,
		}
		if product.TaxRate == 0 {
			product.TaxRate = 20
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&product).Error; err != nil {
				return err
			}
			for _, bi := range input.BundleItems {
				var sub models.Product
				if err := tx.First(&sub, "id = ?", bi.SubProductID).Error; err != nil {
					return errors.New("bundle component does not exist")
				}
				qty := bi.Quantity
				if qty == 0 {
					qty = 1
				}
				if err := tx.Create(&models.BundleItem{
					BundleID:     product.ID,
					SubProductID: bi.SubProductID,
					Quantity:     qty,
				}).Error; err != nil {
					return err
				}
			}
			if len(input.CategoryIDs) > 0 {
				var cats []models.Category
				if err := tx.Find(&cats, input.CategoryIDs).Error; err != nil {
					return err
				}
				return tx.Model(&product).Association("Categories").Replace(cats)
			}
			return nil
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, product)
	}
}

// GET /products
func GetProducts(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var products []models.Product
		query := db.Preload("Categories").Preload("BundleItems")
		if brand := c.Query("brand"); brand != "" {
			query = query.Where("brand = ?", brand)
		}
		if err := query.Find(&products).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
			return
		}
		c.JSON(http.StatusOK, products)
	}
}

// GET /products/:id
func GetProductByID(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var product models.Product
		if err := db.Preload("Categories").Preload("BundleItems").
			First(&product, "id = ?", c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

// PUT /admin/products/:id
func UpdateProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var product models.Product
		if err := db.First(&product, "id = ?", c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}

		var input ProductInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		product.Name = input.Name
		product.Description = input.Description
		product.Brand = input.Brand
		product.Price = input.Price
		product.DiscountedPrice = input.DiscountedPrice
		product.Image = input.Image
		product.Stock = input.Stock
		if input.TaxRate > 0 {
			product.TaxRate = input.TaxRate
		}
		product.StockMountID = input.StockMountID

		if err := db.Save(&product).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product"})
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

// DELETE /admin/products/:id
func DeleteProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := db.Delete(&models.Product{}, "id = ?", c.Param("id"))
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete product"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
	}
}
