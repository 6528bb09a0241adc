package cache

// Redis key schema. Emails are lower-cased before they reach this layer, so
// keys are stable per address.
func RegistrationKey(email string) string { return "register:" + email }

func RegistrationCooldownKey(email string) string { return "register:ratelimit:" + email }

func RefreshKey(userID string) string { return "refresh:" + userID }

func ResetKey(email string) string { return "reset:" + email }

func ResetCooldownKey(email string) string { return "reset:rateLimit:" + email }
