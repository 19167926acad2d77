package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config carries every knob the pipeline needs. It is built once in main and
// passed by reference into each component constructor; stage logic never reads
// the environment on its own.
type Config struct {
	Environment string
	OutputDir   string
	ModelsDir   string
	LogDir      string

	// Completion backends. Backend may be "ollama", "openai" or "gemini";
	// empty means probe the ranked list and take the first one that answers.
	CompletionBackend string
	OllamaBaseURL     string
	OllamaModel       string
	ResearchModel     string
	OpenAIBaseURL     string
	OpenAIAPIKey      string
	OpenAIModel       string
	GeminiAPIKey      string
	GeminiModel       string

	// Web search.
	SearxNGURL string

	// Visual producers.
	ZImageURL      string
	QwenEditURL    string
	WanRepoPath    string
	WanModelPath   string
	WanVideoSize   string
	WanSampleSteps int

	// TTS.
	TTSEngine          string
	ChatterboxScript   string
	ChatterboxDevice   string
	ChatterboxVoiceRef string
	EdgeVoice          string

	// Video output.
	VideoWidth  int
	VideoHeight int
	VideoFPS    int

	// Story structure.
	TotalParts    int
	PartDuration  int
	ScenesPerPart int
	ScenesCount   int
	ShortDuration int

	LowVRAM bool
	BGMDir  string

	FFmpegTimeout time.Duration

	// Artifact server.
	HTTPPort     string
	HTTPSPort    string
	Domains      []string
	CertCacheDir string

	// Optional YouTube upload.
	YouTubeClientSecrets string
	YouTubeTokenFile     string
	YouTubePrivacy       string

	// Optional SMS notification.
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioToNumber   string
}

var isTest bool

func init() {
	isTest = os.Getenv("GO_ENVIRONMENT") == "test"
	if !isTest {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: Error loading .env file:", err)
		}
	}
}

func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		OutputDir:   getEnv("OUTPUT_DIR", "output"),
		ModelsDir:   getEnv("MODELS_DIR", "models"),
		LogDir:      getEnv("LOG_DIR", "logs"),

		CompletionBackend: getEnv("COMPLETION_BACKEND", ""),
		OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "deepseek-v3:q4_k_m"),
		ResearchModel:     getEnv("RESEARCH_MODEL", "qwen3:32b"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		SearxNGURL: getEnv("SEARXNG_URL", "http://localhost:8080"),

		ZImageURL:      getEnv("ZIMAGE_URL", "http://localhost:9801"),
		QwenEditURL:    getEnv("QWEN_EDIT_URL", "http://localhost:9802"),
		WanRepoPath:    getEnv("WAN_REPO_PATH", "models/Wan2.2"),
		WanModelPath:   getEnv("WAN_MODEL_PATH", "models/Wan2.2-I2V-A14B"),
		WanVideoSize:   getEnv("WAN_VIDEO_SIZE", "1280*720"),
		WanSampleSteps: getEnvAsInt("WAN_SAMPLE_STEPS", 20),

		TTSEngine:          getEnv("TTS_ENGINE", "chatterbox"),
		ChatterboxScript:   getEnv("CHATTERBOX_SCRIPT", "models/chatterbox/synthesize.py"),
		ChatterboxDevice:   getEnv("CHATTERBOX_DEVICE", "cuda"),
		ChatterboxVoiceRef: getEnv("CHATTERBOX_VOICE_REF", ""),
		EdgeVoice:          getEnv("EDGE_VOICE", "en-US-GuyNeural"),

		VideoWidth:  getEnvAsInt("VIDEO_WIDTH", 1280),
		VideoHeight: getEnvAsInt("VIDEO_HEIGHT", 720),
		VideoFPS:    getEnvAsInt("VIDEO_FPS", 24),

		TotalParts:    getEnvAsInt("TOTAL_PARTS", 20),
		PartDuration:  getEnvAsInt("PART_DURATION", 60),
		ScenesPerPart: getEnvAsInt("SCENES_PER_PART", 5),
		ScenesCount:   getEnvAsInt("SCENES_COUNT", 6),
		ShortDuration: getEnvAsInt("SHORT_DURATION", 60),

		LowVRAM: getEnvAsBool("LOW_VRAM_MODE", true),
		BGMDir:  getEnv("BGM_DIR", "assets/bgm"),

		FFmpegTimeout: time.Duration(getEnvAsInt("FFMPEG_TIMEOUT", 300)) * time.Second,

		HTTPPort:     getEnv("HTTP_PORT", "8086"),
		HTTPSPort:    getEnv("HTTPS_PORT", "443"),
		Domains:      []string{getEnv("DOMAIN", "example.com")},
		CertCacheDir: getEnv("CERT_CACHE_DIR", "certs"),

		YouTubeClientSecrets: getEnv("YOUTUBE_CLIENT_SECRETS", "client_secret.json"),
		YouTubeTokenFile:     getEnv("YOUTUBE_TOKEN_FILE", "youtube_token.json"),
		YouTubePrivacy:       getEnv("YOUTUBE_PRIVACY", "private"),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioToNumber:   getEnv("TWILIO_TO_NUMBER", ""),
	}
}

// fileConfig is the YAML shape accepted by ApplyFile. Only the fields that make
// sense in a project file are exposed; credentials stay in the environment.
type fileConfig struct {
	Output struct {
		Dir    string `yaml:"dir"`
		Width  int    `yaml:"width"`
		Height int    `yaml:"height"`
		FPS    int    `yaml:"fps"`
	} `yaml:"output"`
	Story struct {
		TotalParts    int `yaml:"total_parts"`
		PartDuration  int `yaml:"part_duration"`
		ScenesPerPart int `yaml:"scenes_per_part"`
		ScenesCount   int `yaml:"scenes_count"`
		ShortDuration int `yaml:"short_duration"`
	} `yaml:"story"`
	Models struct {
		CompletionBackend string `yaml:"completion_backend"`
		OllamaModel       string `yaml:"ollama_model"`
		ResearchModel     string `yaml:"research_model"`
		TTSEngine         string `yaml:"tts_engine"`
		WanSampleSteps    int    `yaml:"wan_sample_steps"`
		LowVRAM           *bool  `yaml:"low_vram"`
	} `yaml:"models"`
	BGMDir string `yaml:"bgm_dir"`
}

// ApplyFile overlays settings from a YAML project file on top of the
// environment-derived configuration.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.Output.Dir != "" {
		c.OutputDir = fc.Output.Dir
	}
	if fc.Output.Width > 0 {
		c.VideoWidth = fc.Output.Width
	}
	if fc.Output.Height > 0 {
		c.VideoHeight = fc.Output.Height
	}
	if fc.Output.FPS > 0 {
		c.VideoFPS = fc.Output.FPS
	}
	if fc.Story.TotalParts > 0 {
		c.TotalParts = fc.Story.TotalParts
	}
	if fc.Story.PartDuration > 0 {
		c.PartDuration = fc.Story.PartDuration
	}
	if fc.Story.ScenesPerPart > 0 {
		c.ScenesPerPart = fc.Story.ScenesPerPart
	}
	if fc.Story.ScenesCount > 0 {
		c.ScenesCount = fc.Story.ScenesCount
	}
	if fc.Story.ShortDuration > 0 {
		c.ShortDuration = fc.Story.ShortDuration
	}
	if fc.Models.CompletionBackend != "" {
		c.CompletionBackend = fc.Models.CompletionBackend
	}
	if fc.Models.OllamaModel != "" {
		c.OllamaModel = fc.Models.OllamaModel
	}
	if fc.Models.ResearchModel != "" {
		c.ResearchModel = fc.Models.ResearchModel
	}
	if fc.Models.TTSEngine != "" {
		c.TTSEngine = fc.Models.TTSEngine
	}
	if fc.Models.WanSampleSteps > 0 {
		c.WanSampleSteps = fc.Models.WanSampleSteps
	}
	if fc.Models.LowVRAM != nil {
		c.LowVRAM = *fc.Models.LowVRAM
	}
	if fc.BGMDir != "" {
		c.BGMDir = fc.BGMDir
	}

	return nil
}

// Resolution returns the output resolution in ffmpeg scale syntax.
func (c *Config) Resolution() string {
	return fmt.Sprintf("%d:%d", c.VideoWidth, c.VideoHeight)
}

// TargetDuration is the long-form runtime target in seconds.
func (c *Config) TargetDuration() int {
	return c.TotalParts * c.PartDuration
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}
