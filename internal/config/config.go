package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	//Server configuration
	ServerPort      string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	LogLevel        string

	//Browser configuration
	ChromiumPath    string
	InstallBrowsers bool
	NavTimeout      time.Duration
	ActionTimeout   time.Duration

	//Session persistence
	SessionBackend string
	SessionsDir    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SessionTTL     time.Duration

	//Interactive login and managed profiles
	ProfilesDir        string
	ExtensionsDir      string
	LoginTimeout       time.Duration
	LoginSharedProfile bool

	//External browser bridge
	CDPEndpoint string
	CDPTimeout  time.Duration

	//WebSocket relay
	WSHeartbeat time.Duration
}

// Session backends
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Load reads the configuration from the environment
func Load() (*Config, error) {
	chromiumPath, err := findChromium()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", ""),

		ChromiumPath:    chromiumPath,
		InstallBrowsers: getEnvAsBool("INSTALL_BROWSERS", false),
		NavTimeout:      getEnvAsDuration("NAV_TIMEOUT", 30*time.Second),
		ActionTimeout:   getEnvAsDuration("ACTION_TIMEOUT", 10*time.Second),

		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", BackendFile)),
		SessionsDir:    getEnv("SESSIONS_DIR", "./sessions"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 0),

		ProfilesDir:        getEnv("PROFILES_DIR", "./profiles"),
		ExtensionsDir:      getEnv("EXTENSIONS_DIR", "./extensions"),
		LoginTimeout:       getEnvAsDuration("LOGIN_TIMEOUT", 10*time.Minute),
		LoginSharedProfile: getEnvAsBool("LOGIN_SHARED_PROFILE", false),

		CDPEndpoint: getEnv("CDP_ENDPOINT", "http://localhost:9222"),
		CDPTimeout:  getEnvAsDuration("CDP_TIMEOUT", 3*time.Second),

		WSHeartbeat: getEnvAsDuration("WS_HEARTBEAT", 30*time.Second),
	}

	if cfg.SessionBackend != BackendFile && cfg.SessionBackend != BackendRedis {
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q, expected %q or %q", cfg.SessionBackend, BackendFile, BackendRedis)
	}

	return cfg, nil
}

func getEnv(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	boolVal, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return boolVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return duration
}

// Function to find the Chromium binary path.
// An empty result means playwright's bundled chromium is used.
func findChromium() (string, error) {

	// Check if CHROMIUM_PATH environment variable is set
	customPath := os.Getenv("CHROMIUM_PATH")
	if customPath != "" {

		// Validate the custom path exists
		if !fileExists(customPath) {
			return "", fmt.Errorf("chromium binary not found at path: %s", customPath)
		}

		// Validate the custom path is executable
		if !isExecutable(customPath) {
			return "", fmt.Errorf("chromium binary found but not executable: %s", customPath)
		}
		return customPath, nil
	}

	// Only look for a system browser when asked to
	if !getEnvAsBool("USE_SYSTEM_CHROMIUM", false) {
		return "", nil
	}

	// Get current operating system
	currentOS := runtime.GOOS

	// Search through common paths for this OS
	for _, path := range getChromiumPaths(currentOS) {
		if fileExists(path) && isExecutable(path) {
			return path, nil
		}
	}

	// If we get here, chromium wasn't found anywhere
	return "", fmt.Errorf("chromium not found in common paths for %s, set CHROMIUM_PATH environment variable", currentOS)
}

// getChromiumPaths returns common Chromium installation paths based on OS.
func getChromiumPaths(operatingSystem string) []string {
	// macOS paths
	if operatingSystem == "darwin" {
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	}

	// Linux paths
	if operatingSystem == "linux" {
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/snap/bin/chromium",
		}
	}

	// Windows paths
	if operatingSystem == "windows" {
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}

	// Unsupported OS
	return []string{}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
