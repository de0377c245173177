package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/volkanaggunlu/ecommerce-api/basitkargo"
	orderControllers "github.com/volkanaggunlu/ecommerce-api/controllers/order"
	"github.com/volkanaggunlu/ecommerce-api/klaviyo"
	"github.com/volkanaggunlu/ecommerce-api/mailer"
	"github.com/volkanaggunlu/ecommerce-api/models"
	"github.com/volkanaggunlu/ecommerce-api/routes"
	"github.com/volkanaggunlu/ecommerce-api/stockmount"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	log.Println("✅ Starting application...")

	// Load environment variables
	_ = godotenv.Load()

	// Init DB
	db := initDatabase()

	// Auto-migrate all tables
	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Category{},
		&models.BundleItem{},
		&models.Cart{},
		&models.CartItem{},
		&models.CartSubItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderSubItem{},
		&models.Coupon{},
		&models.CouponUsage{},
	); err != nil {
		log.Fatalf("❌ AutoMigrate failed: %v", err)
	}

	// Gin setup
	r := gin.Default()

	// CORS settings
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-KEY"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// External integrations
	deps := buildCollaborators()

	// Setup routes
	routes.SetupRoutes(r, db, deps)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("🚀 Server running on port %s...", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// buildCollaborators wires the external services from the environment.
// Integrations without configuration stay nil and the order flow skips them.
func buildCollaborators() *orderControllers.Collaborators {
	deps := &orderControllers.Collaborators{
		FulfillmentCfg: stockmount.LoadExportConfig(),
	}

	if client, err := stockmount.NewClientFromEnv(); err != nil {
		log.Printf("⚠️ StockMount disabled: %v", err)
	} else {
		deps.Fulfillment = client
	}

	if carrier := basitkargo.NewClientFromEnv(); carrier != nil {
		deps.Carrier = carrier
	} else {
		log.Println("⚠️ BasitKargo disabled: BASITKARGO_API_KEY not set")
	}

	if marketing := klaviyo.NewClientFromEnv(); marketing != nil {
		deps.Marketing = marketing
	} else {
		log.Println("⚠️ Klaviyo disabled: KLAVIYO_API_KEY not set")
	}

	if mail := mailer.NewFromEnv(); mail != nil {
		deps.Mail = mail
	} else {
		log.Println("⚠️ Mailer disabled: SMTP_HOST not set")
	}

	return deps
}

// initDatabase sets up the GORM DB connection
func initDatabase() *gorm.DB {
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
		if err != nil {
			log.Fatalf("❌ DB connection failed: %v", err)
		}
		return db
	}

	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	dbname := os.Getenv("DB_NAME")

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("❌ Failed to connect DB: %v", err)
	}
	return db
}
