package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Database
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`

	// Auth (Supabase)
	JWTSecret          string `envconfig:"SUPABASE_JWT_SECRET"`
	SupabaseURL        string `envconfig:"SUPABASE_URL"`
	SupabaseServiceKey string `envconfig:"SUPABASE_SERVICE_ROLE_KEY"`

	// Stripe
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	AppBaseURL          string `envconfig:"APP_BASE_URL" default:"http://localhost:3000"`

	// One-time credit packs
	StripePriceCreditSmall  string `envconfig:"STRIPE_PRICE_CREDIT_SMALL"`
	StripePriceCreditLarge  string `envconfig:"STRIPE_PRICE_CREDIT_LARGE"`
	StripePriceCreditXLarge string `envconfig:"STRIPE_PRICE_CREDIT_XLARGE"`
	CreditsSmall            int    `envconfig:"CREDITS_SMALL" default:"10"`
	CreditsLarge            int    `envconfig:"CREDITS_LARGE" default:"30"`
	CreditsXLarge           int    `envconfig:"CREDITS_XLARGE" default:"100"`
	AmountCentsSmall        int64  `envconfig:"AMOUNT_CENTS_SMALL" default:"449"`
	AmountCentsLarge        int64  `envconfig:"AMOUNT_CENTS_LARGE" default:"1199"`
	AmountCentsXLarge       int64  `envconfig:"AMOUNT_CENTS_XLARGE" default:"2999"`

	// Subscription tiers
	StripePriceSubBasic   string `envconfig:"STRIPE_PRICE_SUB_BASIC"`
	StripePriceSubPro     string `envconfig:"STRIPE_PRICE_SUB_PRO"`
	StripePriceSubPremium string `envconfig:"STRIPE_PRICE_SUB_PREMIUM"`
	MonthlyCreditsBasic   int    `envconfig:"MONTHLY_CREDITS_BASIC" default:"25"`
	MonthlyCreditsPro     int    `envconfig:"MONTHLY_CREDITS_PRO" default:"55"`
	MonthlyCreditsPremium int    `envconfig:"MONTHLY_CREDITS_PREMIUM" default:"140"`

	// Ledger
	BootstrapCredits int `envconfig:"BOOTSTRAP_CREDITS" default:"1"`

	// Generation
	GeminiAPIKey          string        `envconfig:"GOOGLE_API_KEY" required:"true"`
	GeminiBaseURL         string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModelStandard   string        `envconfig:"GEMINI_MODEL_STANDARD" default:"gemini-2.5-flash-image"`
	GeminiModelPro        string        `envconfig:"GEMINI_MODEL_PRO" default:"gemini-3-pro-image-preview"`
	CostPerImageStandard  int           `envconfig:"COST_PER_IMAGE_STANDARD" default:"1"`
	CostPerImagePro       int           `envconfig:"COST_PER_IMAGE_PRO" default:"5"`
	MaxImagesPerRequest   int           `envconfig:"MAX_IMAGES_PER_REQUEST" default:"4"`
	GenerationTimeout     time.Duration `envconfig:"GENERATION_TIMEOUT" default:"120s"`
	GenerationHTTPTimeout time.Duration `envconfig:"GENERATION_HTTP_TIMEOUT" default:"90s"`

	// Image storage (optional; images are stored inline as data URIs when unset)
	S3URL       string `envconfig:"SUPABASE_S3_URL"`
	S3Bucket    string `envconfig:"SUPABASE_S3_BUCKET"`
	S3Region    string `envconfig:"SUPABASE_S3_REGION"`
	S3AccessKey string `envconfig:"SUPABASE_S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"SUPABASE_S3_SECRET_KEY"`
	S3PublicURL string `envconfig:"SUPABASE_S3_PUBLIC_URL"`

	// Billing notifications (optional)
	GCPProjectID       string `envconfig:"GCP_PROJECT_ID"`
	PubSubBillingTopic string `envconfig:"PUBSUB_BILLING_TOPIC"`

	// Secret Manager (optional). Secret-bearing settings may hold sm://<secret-name>
	// references that are resolved at startup.
	SecretManagerProjectID string `envconfig:"SECRET_MANAGER_PROJECT_ID"`
	GoogleCredentialsFile  string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// StorageEnabled reports whether generated images should be offloaded to S3.
func (c *Config) StorageEnabled() bool {
	return c.S3Bucket != "" && c.S3URL != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// PubSubEnabled reports whether reconciled billing events are published.
func (c *Config) PubSubEnabled() bool {
	return c.GCPProjectID != "" && c.PubSubBillingTopic != ""
}
