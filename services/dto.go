// Package services holds the REST clients for the backend collaborators:
// the product catalog, the user profile service, and the pairing assistant.
package services

import "fmt"

// APIError is the error shape the backend services embed in their response
// envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Wine as served by the catalog service. Names and descriptions come in
// both storefront languages.
type Wine struct {
	ID                 string   `json:"id"`
	NameEN             string   `json:"nameEn"`
	NameFR             string   `json:"nameFr"`
	DescriptionEN      string   `json:"descriptionEn"`
	DescriptionFR      string   `json:"descriptionFr"`
	ImageURL           string   `json:"imageUrl"`
	Origin             string   `json:"origin"`
	Grape              string   `json:"grape"`
	Type               string   `json:"type"`
	Flavors            []string `json:"flavors"`
	SweetnessLevel     int      `json:"sweetnessLevel"`
	Body               int      `json:"body"`
	Price              float64  `json:"price"`
	Available          bool     `json:"available"`
	AlcoholPercentage  float64  `json:"alcoholPercentage"`
	ServingTemperature string   `json:"servingTemperature"`
}

// Cheese as served by the catalog service.
type Cheese struct {
	ID            string   `json:"id"`
	NameEN        string   `json:"nameEn"`
	NameFR        string   `json:"nameFr"`
	DescriptionEN string   `json:"descriptionEn"`
	DescriptionFR string   `json:"descriptionFr"`
	ImageURL      string   `json:"imageUrl"`
	Origin        string   `json:"origin"`
	Type          string   `json:"type"`
	Flavors       []string `json:"flavors"`
	Intensity     int      `json:"intensity"`
	Price         float64  `json:"price"`
	Available     bool     `json:"available"`
}

// UserProfile is the account record the user service keeps for a B2C
// identity.
type UserProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Language  string `json:"language,omitempty"`
	Role      string `json:"role,omitempty"`
}

// UpdateUserProfileRequest is the writable subset of the profile.
type UpdateUserProfileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Language  string `json:"language"`
}

// UserPreferences holds the tasting preferences attached to an account.
type UserPreferences struct {
	ID                string   `json:"id"`
	UserID            string   `json:"userId"`
	PreferredLanguage string   `json:"preferredLanguage,omitempty"`
	FavoriteWineTypes []string `json:"favoriteWineTypes,omitempty"`
	FavoriteCheeses   []string `json:"favoriteCheeseTypes,omitempty"`
	PriceRangeMin     *float64 `json:"priceRangeMin,omitempty"`
	PriceRangeMax     *float64 `json:"priceRangeMax,omitempty"`
}

// UpdateUserPreferencesRequest carries a partial preferences update.
type UpdateUserPreferencesRequest struct {
	PreferredLanguage string   `json:"preferredLanguage,omitempty"`
	FavoriteWineTypes []string `json:"favoriteWineTypes,omitempty"`
	FavoriteCheeses   []string `json:"favoriteCheeseTypes,omitempty"`
	PriceRangeMin     *float64 `json:"priceRangeMin,omitempty"`
	PriceRangeMax     *float64 `json:"priceRangeMax,omitempty"`
}

// Product types accepted by the wishlist.
const (
	ProductTypeWine   = "WINE"
	ProductTypeCheese = "CHEESE"
)

// WishlistItem links an account to a saved product.
type WishlistItem struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	ProductID   string `json:"productId"`
	ProductType string `json:"productType"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

type wishlistItemRequest struct {
	ProductID   string `json:"productId"`
	ProductType string `json:"productType"`
}

// PairingRequest is one chat turn sent to the pairing assistant.
type PairingRequest struct {
	Message           string   `json:"message"`
	Locale            string   `json:"locale"`
	SelectedWineIDs   []string `json:"selectedWineIds"`
	SelectedCheeseIDs []string `json:"selectedCheeseIds"`
}

// PairingResponse is the assistant's answer with product recommendations.
type PairingResponse struct {
	Answer               string   `json:"answer"`
	RecommendedWineIDs   []string `json:"recommendedWineIds"`
	RecommendedCheeseIDs []string `json:"recommendedCheeseIds"`
}

// PairingHistoryItem is one stored chat turn. UserID is empty for turns
// made while logged out.
type PairingHistoryItem struct {
	ID                   string   `json:"id"`
	UserID               string   `json:"userId,omitempty"`
	Locale               string   `json:"locale"`
	Source               string   `json:"source"`
	Message              string   `json:"message"`
	SelectedWineIDs      []string `json:"selectedWineIds"`
	SelectedCheeseIDs    []string `json:"selectedCheeseIds"`
	Answer               string   `json:"answer"`
	RecommendedWineIDs   []string `json:"recommendedWineIds"`
	RecommendedCheeseIDs []string `json:"recommendedCheeseIds"`
	CreatedAt            string   `json:"createdAt"`
}
