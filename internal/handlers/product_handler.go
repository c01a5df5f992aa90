package handlers

import (
	"net/http"

	"medshop/internal/inventory"
	"medshop/internal/middleware"

	"github.com/gin-gonic/gin"
)

// --- GET: /api/products?filter=all|expired|low_stock|scheduled ---
func (h *Handler) GetProducts(c *gin.Context) {
	products, err := h.Inventory.ListProducts(c.Request.Context(), c.DefaultQuery("filter", inventory.FilterAll))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// --- GET: /api/products/search?q= ---
// Used by the billing screen to look up sellable items.
func (h *Handler) SearchProducts(c *gin.Context) {
	products, err := h.Inventory.SearchProducts(c.Request.Context(), c.Query("q"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// --- GET: /api/products/:id ---
func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	product, err := h.Inventory.GetProduct(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// --- POST: /api/products ---
func (h *Handler) AddProduct(c *gin.Context) {
	var input inventory.ProductInput
	if !bindJSON(c, &input) {
		return
	}
	product, err := h.Inventory.CreateProduct(c.Request.Context(), middleware.Principal(c), input)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// --- PUT: /api/products/:id ---
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input inventory.ProductInput
	if !bindJSON(c, &input) {
		return
	}
	product, err := h.Inventory.UpdateProduct(c.Request.Context(), middleware.Principal(c), id, input)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully", "product": product})
}

// --- DELETE: /api/products/:id ---
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.Inventory.DeleteProduct(c.Request.Context(), middleware.Principal(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

// --- GET: /api/suppliers ---
func (h *Handler) GetSuppliers(c *gin.Context) {
	suppliers, err := h.Inventory.ListSuppliers(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, suppliers)
}

// --- GET: /api/suppliers/:id ---
func (h *Handler) GetSupplier(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	supplier, err := h.Inventory.GetSupplier(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, supplier)
}

// --- POST: /api/suppliers ---
func (h *Handler) AddSupplier(c *gin.Context) {
	var input inventory.SupplierInput
	if !bindJSON(c, &input) {
		return
	}
	supplier, err := h.Inventory.CreateSupplier(c.Request.Context(), middleware.Principal(c), input)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, supplier)
}

// --- PUT: /api/suppliers/:id ---
func (h *Handler) UpdateSupplier(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input inventory.SupplierInput
	if !bindJSON(c, &input) {
		return
	}
	supplier, err := h.Inventory.UpdateSupplier(c.Request.Context(), middleware.Principal(c), id, input)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Supplier updated successfully", "supplier": supplier})
}

// --- DELETE: /api/suppliers/:id ---
func (h *Handler) DeleteSupplier(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.Inventory.DeleteSupplier(c.Request.Context(), middleware.Principal(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Supplier deleted successfully"})
}
