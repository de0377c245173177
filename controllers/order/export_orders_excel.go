package orderControllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tealeg/xlsx"
	"github.com/volkanaggunlu/ecommerce-api/models"
	"gorm.io/gorm"
)

// GET /admin/orders/export-excel
func ExportOrdersToExcel(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var orders []models.Order
		query := db.Preload("Items").Order("created_at DESC")
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		if err := query.Find(&orders).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch orders"})
			return
		}

		file := xlsx.NewFile()
		sheet, err := file.AddSheet("Orders")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel sheet"})
			return
		}

		headers := []string{
			"ID", "MerchantOID", "Customer", "Email", "Status", "TotalAmount",
			"Discount", "CouponCode", "ShippingCost", "PaymentAmount(kurus)",
			"ItemCount", "SentToStockMount", "ShipmentCode", "CreatedAt",
		}
		headerRow := sheet.AddRow()
		for _, h := range headers {
			headerRow.AddCell().SetValue(h)
		}

		for _, o := range orders {
			row := sheet.AddRow()
			row.AddCell().SetValue(o.ID)
			row.AddCell().SetValue(o.MerchantOID)
			row.AddCell().SetValue(o.Name)
			row.AddCell().SetValue(o.Email)
			row.AddCell().SetValue(string(o.Status))
			row.AddCell().SetValue(o.TotalAmount)
			row.AddCell().SetValue(o.DiscountAmount)
			row.AddCell().SetValue(o.CouponCode)
			row.AddCell().SetValue(o.ShippingCost)
			row.AddCell().SetValue(o.PaymentAmount)
			row.AddCell().SetValue(len(o.Items))
			row.AddCell().SetValue(o.SentToStockMount)
			row.AddCell().SetValue(o.ShipmentCode)
			row.AddCell().SetValue(o.CreatedAt.Format("2006-01-02 15:04:05"))
		}

		c.Header("Content-Disposition", "attachment; filename=orders.xlsx")
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Transfer-Encoding", "binary")
		c.Header("Expires", "0")

		if err := file.Write(c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write Excel file"})
			return
		}
	}
}
