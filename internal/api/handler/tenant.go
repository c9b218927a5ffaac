package handler

import "github.com/gin-gonic/gin"

// TenantHeader carries the tenant id on every API request. Requests without
// it fall back to the default tenant.
const TenantHeader = "X-Tenant-ID"

// DefaultTenant is used when no tenant header is present.
const DefaultTenant = "default"

const tenantContextKey = "tenant"

// TenantMiddleware extracts the owning tenant from the request and stores
// it on the context. The tenant is never user-overridable past this point.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader(TenantHeader)
		if tenant == "" {
			tenant = DefaultTenant
		}
		c.Set(tenantContextKey, tenant)
		c.Next()
	}
}

// TenantID returns the tenant extracted by TenantMiddleware.
func TenantID(c *gin.Context) string {
	tenant := c.GetString(tenantContextKey)
	if tenant == "" {
		return DefaultTenant
	}
	return tenant
}
