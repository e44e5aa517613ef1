// Package profile defines the tenant profile records shared by every
// entitlement surface, together with the centralized settings decoder and
// the Store contract they are persisted through.
package profile

import (
	"strings"
	"time"
)

// SubscriptionStatus is the administrative override on a tenant account.
// It is independent of plan and expiry and always evaluated first.
type SubscriptionStatus string

const (
	StatusNone      SubscriptionStatus = ""
	StatusActive    SubscriptionStatus = "active"
	StatusSuspended SubscriptionStatus = "suspended"
	StatusBanned    SubscriptionStatus = "banned"
)

// Department is an operational surface of the restaurant product.
type Department string

const (
	DepartmentNone     Department = ""
	DepartmentKitchen  Department = "kitchen"
	DepartmentPizzeria Department = "pizzeria"
	DepartmentPub      Department = "pub"
	DepartmentDelivery Department = "delivery"
	DepartmentWaiter   Department = "waiter"
)

// LockableDepartments are the surfaces a low-tier plan may be locked to.
// The waiter surface is always allowed and never locks.
var LockableDepartments = map[Department]bool{
	DepartmentKitchen:  true,
	DepartmentPizzeria: true,
	DepartmentPub:      true,
	DepartmentDelivery: true,
}

// ParseDepartment normalizes a department label. Unknown labels map to
// DepartmentNone.
func ParseDepartment(s string) Department {
	switch Department(strings.ToLower(strings.TrimSpace(s))) {
	case DepartmentKitchen:
		return DepartmentKitchen
	case DepartmentPizzeria:
		return DepartmentPizzeria
	case DepartmentPub:
		return DepartmentPub
	case DepartmentDelivery:
		return DepartmentDelivery
	case DepartmentWaiter:
		return DepartmentWaiter
	}
	return DepartmentNone
}

// TenantProfile is one restaurant account.
type TenantProfile struct {
	ID                 string             `json:"id"`
	Email              string             `json:"email"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	Settings           TenantSettings     `json:"settings"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// TenantSettings is the tenant-scoped configuration blob. The JSON field
// names mirror the persisted shape and must not change.
type TenantSettings struct {
	RestaurantProfile RestaurantProfile `json:"restaurantProfile"`

	// GlobalConfig is populated only on the super-admin profile and is
	// read-shared by all tenants through the global config cache.
	GlobalConfig *GlobalConfig `json:"globalConfig,omitempty"`

	// Admin-managed routing and delivery settings, not touched by the
	// entitlement core.
	CategoryRouting   map[string]string `json:"categoryRouting,omitempty"`
	PrintOrders       bool              `json:"printOrders,omitempty"`
	DeliveryPlatforms []string          `json:"deliveryPlatforms,omitempty"`
}

// RestaurantProfile carries the plan and onboarding state the evaluator
// reads.
type RestaurantProfile struct {
	PlanType            string          `json:"planType"`
	SubscriptionEndDate *DateOnly       `json:"subscriptionEndDate,omitempty"`
	AllowedDepartment   Department      `json:"allowedDepartment,omitempty"`
	UserPreferences     UserPreferences `json:"userPreferences"`
}

// UserPreferences controls the one-time welcome gate.
type UserPreferences struct {
	TermsAccepted        bool `json:"termsAccepted"`
	DontShowWelcomeAgain bool `json:"dontShowWelcomeAgain"`
}

// UnlimitedPlans are the plan labels that never expire. All other plans
// are expiry-checked against subscriptionEndDate.
var UnlimitedPlans = map[string]bool{
	"Free": true,
	"Demo": true,
}

// IsUnlimitedPlan reports whether the plan label is one of the
// unrestricted-duration plans.
func IsUnlimitedPlan(planType string) bool {
	return UnlimitedPlans[strings.TrimSpace(planType)]
}

// IsBasicPlan reports whether the plan label is subject to the
// single-department lock. Matching is case-insensitive on the "basic"
// substring so label variants ("Basic", "basic-monthly") all qualify.
func IsBasicPlan(planType string) bool {
	return strings.Contains(strings.ToLower(planType), "basic")
}

// GlobalConfig is the deployment-wide display configuration owned by the
// super-admin profile. Field names mirror the persisted shape.
type GlobalConfig struct {
	ContactEmail   string         `json:"contactEmail"`
	DefaultCost    float64        `json:"defaultCost"`
	BankDetails    BankDetails    `json:"bankDetails"`
	SupportContact SupportContact `json:"supportContact"`
	Promo          Promo          `json:"promo"`
}

// BankDetails are displayed as payment instructions; nothing is collected.
type BankDetails struct {
	IBAN   string `json:"iban"`
	Holder string `json:"holder"`
}

// SupportContact is the support phone shown across the product.
type SupportContact struct {
	Phone string `json:"phone"`
}

// Promo is a presentation-only pricing override. Its countdown is computed
// at read time; the stored Active flag is never auto-cleared.
type Promo struct {
	Name          string    `json:"name"`
	Cost          float64   `json:"cost"`
	Duration      string    `json:"duration"`
	DeadlineHours int       `json:"deadlineHours"`
	Active        bool      `json:"active"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// Clone returns a deep copy so callers can hand profiles across goroutines
// without sharing mutable state.
func (p *TenantProfile) Clone() *TenantProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Settings = p.Settings.clone()
	return &c
}

func (s TenantSettings) clone() TenantSettings {
	c := s
	if s.RestaurantProfile.SubscriptionEndDate != nil {
		d := *s.RestaurantProfile.SubscriptionEndDate
		c.RestaurantProfile.SubscriptionEndDate = &d
	}
	if s.GlobalConfig != nil {
		gc := *s.GlobalConfig
		c.GlobalConfig = &gc
	}
	if s.CategoryRouting != nil {
		c.CategoryRouting = make(map[string]string, len(s.CategoryRouting))
		for k, v := range s.CategoryRouting {
			c.CategoryRouting[k] = v
		}
	}
	if s.DeliveryPlatforms != nil {
		c.DeliveryPlatforms = append([]string(nil), s.DeliveryPlatforms...)
	}
	return c
}
