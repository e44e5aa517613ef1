package profile

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSettings returns a fully-defaulted settings structure. Every
// downstream consumer reads only this typed form; raw optional fields never
// leak past the decoder.
func DefaultSettings() TenantSettings {
	return TenantSettings{
		RestaurantProfile: RestaurantProfile{
			PlanType: "Free",
		},
	}
}

// DefaultGlobalConfig returns the fallback deployment configuration used
// whenever the super-admin blob is missing or malformed.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{}
}

// DecodeSettings is the single deserialization step for the persisted
// settings blob. Malformed or partially-missing nested fields are treated
// as absent and default-substituted; decoding never fails.
func DecodeSettings(raw []byte) TenantSettings {
	settings := DefaultSettings()
	if len(raw) == 0 {
		return settings
	}

	var outer struct {
		RestaurantProfile json.RawMessage `json:"restaurantProfile"`
		GlobalConfig      json.RawMessage `json:"globalConfig"`
		CategoryRouting   json.RawMessage `json:"categoryRouting"`
		PrintOrders       json.RawMessage `json:"printOrders"`
		DeliveryPlatforms json.RawMessage `json:"deliveryPlatforms"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil {
		log.Debug().Err(err).Msg("Malformed settings blob, using defaults")
		return settings
	}

	settings.RestaurantProfile = decodeRestaurantProfile(outer.RestaurantProfile)

	if len(outer.GlobalConfig) > 0 {
		gc := DecodeGlobalConfig(outer.GlobalConfig)
		settings.GlobalConfig = &gc
	}

	if len(outer.CategoryRouting) > 0 {
		var routing map[string]string
		if err := json.Unmarshal(outer.CategoryRouting, &routing); err == nil {
			settings.CategoryRouting = routing
		}
	}
	if len(outer.PrintOrders) > 0 {
		var printOrders bool
		if err := json.Unmarshal(outer.PrintOrders, &printOrders); err == nil {
			settings.PrintOrders = printOrders
		}
	}
	if len(outer.DeliveryPlatforms) > 0 {
		var platforms []string
		if err := json.Unmarshal(outer.DeliveryPlatforms, &platforms); err == nil {
			settings.DeliveryPlatforms = platforms
		}
	}

	return settings
}

func decodeRestaurantProfile(raw json.RawMessage) RestaurantProfile {
	rp := DefaultSettings().RestaurantProfile
	if len(raw) == 0 {
		return rp
	}

	var loose struct {
		PlanType            string          `json:"planType"`
		SubscriptionEndDate json.RawMessage `json:"subscriptionEndDate"`
		AllowedDepartment   string          `json:"allowedDepartment"`
		UserPreferences     json.RawMessage `json:"userPreferences"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		log.Debug().Err(err).Msg("Malformed restaurantProfile, using defaults")
		return rp
	}

	if loose.PlanType != "" {
		rp.PlanType = loose.PlanType
	}
	if len(loose.SubscriptionEndDate) > 0 {
		var d DateOnly
		if err := json.Unmarshal(loose.SubscriptionEndDate, &d); err == nil && !d.IsZero() {
			rp.SubscriptionEndDate = &d
		} else if err != nil {
			log.Debug().Err(err).Msg("Unparseable subscriptionEndDate, treating as absent")
		}
	}
	rp.AllowedDepartment = ParseDepartment(loose.AllowedDepartment)
	if len(loose.UserPreferences) > 0 {
		var prefs UserPreferences
		if err := json.Unmarshal(loose.UserPreferences, &prefs); err == nil {
			rp.UserPreferences = prefs
		}
	}

	return rp
}

// DecodeGlobalConfig decodes the super-admin globalConfig blob, substituting
// defaults for anything missing or malformed.
func DecodeGlobalConfig(raw json.RawMessage) GlobalConfig {
	gc := DefaultGlobalConfig()
	if len(raw) == 0 {
		return gc
	}

	var loose struct {
		ContactEmail   string          `json:"contactEmail"`
		DefaultCost    float64         `json:"defaultCost"`
		BankDetails    BankDetails     `json:"bankDetails"`
		SupportContact SupportContact  `json:"supportContact"`
		Promo          json.RawMessage `json:"promo"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		log.Debug().Err(err).Msg("Malformed globalConfig, using defaults")
		return gc
	}

	gc.ContactEmail = loose.ContactEmail
	gc.DefaultCost = loose.DefaultCost
	gc.BankDetails = loose.BankDetails
	gc.SupportContact = loose.SupportContact
	gc.Promo = decodePromo(loose.Promo)

	return gc
}

func decodePromo(raw json.RawMessage) Promo {
	var promo Promo
	if len(raw) == 0 {
		return promo
	}

	var loose struct {
		Name          string          `json:"name"`
		Cost          float64         `json:"cost"`
		Duration      string          `json:"duration"`
		DeadlineHours int             `json:"deadlineHours"`
		Active        bool            `json:"active"`
		LastUpdated   json.RawMessage `json:"lastUpdated"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		log.Debug().Err(err).Msg("Malformed promo, treating as inactive")
		return promo
	}

	promo.Name = loose.Name
	promo.Cost = loose.Cost
	promo.Duration = loose.Duration
	promo.DeadlineHours = loose.DeadlineHours
	promo.Active = loose.Active
	promo.LastUpdated = decodeFlexibleTime(loose.LastUpdated)

	return promo
}

// decodeFlexibleTime accepts either an RFC 3339 string or a Unix
// millisecond number, the two timestamp encodings seen in stored blobs.
func decodeFlexibleTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		return time.Time{}
	}

	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil && millis > 0 {
		return time.UnixMilli(millis)
	}

	return time.Time{}
}

// EncodeSettings serializes settings back to the persisted blob shape.
func EncodeSettings(settings TenantSettings) ([]byte, error) {
	return json.Marshal(settings)
}
