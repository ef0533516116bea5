package notify

const (
	Red        = "\033[31m"
	Green      = "\033[32m"
	ResetColor = "\033[0m" // Reset to default color
)
