package models

// AppConfig is the single site-wide configuration record stored under the
// config key and served through the cache.
type AppConfig struct {
	Announcement     string `json:"announcement"`
	ShowAnnouncement bool   `json:"showAnnouncement"`
	// GlobalVipExpiry is a millisecond timestamp; while it lies in the
	// future every account is treated as premium.
	GlobalVipExpiry   int64  `json:"globalVipExpiry,omitempty"`
	PopupImage        string `json:"popupImage,omitempty"`
	PopupMessage      string `json:"popupMessage,omitempty"`
	PopupBtnText      string `json:"popupBtnText,omitempty"`
	PopupLink         string `json:"popupLink,omitempty"`
	PopupTarget       string `json:"popupTarget,omitempty"`
	ShowPopup         bool   `json:"showPopup,omitempty"`
	MaintenanceMode   bool   `json:"maintenanceMode,omitempty"`
	CustomBannerImage string `json:"customBannerImage,omitempty"`
	CustomBannerLink  string `json:"customBannerLink,omitempty"`
	ShowCustomBanner  bool   `json:"showCustomBanner,omitempty"`
}
