package statement

// Logger is the logging contract used by this package. *logger.Logger
// implements it.
//
//go:generate mockgen -source=logger.go -destination=mock_logger.go -package=statement
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Debug(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
	Fatal(msg string, err error, fields ...map[string]interface{})
}
