package environment

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type EnvConfig struct {
	NatsUrl     string
	NatsSubject string
	SqsQueueUrl string
	S3Bucket    string
	ArtifactDir string
}

func ReadEnvConfig() *EnvConfig {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Error loading .env file: %v", err)
	}

	result := &EnvConfig{}

	result.NatsUrl = os.Getenv("NATS_URL")
	result.NatsSubject = os.Getenv("NATS_SUBJECT")
	if result.NatsSubject == "" {
		result.NatsSubject = "launcher.runs"
	}

	result.SqsQueueUrl = os.Getenv("SQS_QUEUE_URL")
	result.S3Bucket = os.Getenv("S3_BUCKET")

	result.ArtifactDir = os.Getenv("ARTIFACT_DIR")
	if result.ArtifactDir == "" {
		result.ArtifactDir = "var/launcher/artifacts"
	}

	return result
}
