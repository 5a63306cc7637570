package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/mailersend/mailersend-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MersadMolaei/Pixelizer/config"
	"github.com/MersadMolaei/Pixelizer/pkg/db"
	"github.com/MersadMolaei/Pixelizer/pkg/pixelizer"
)

// WorkerService consumes registered requests, pixelizes them through the
// remote API, archives the result and notifies the requester.
type WorkerService struct {
	cfg             *config.Config
	RequestDatabase db.RequestDatabase
	rabbitMQClient  *amqp.Channel
	minioClient     *minio.Client
	pixClient       *pixelizer.Client
}

func NewWorkerService(cfg *config.Config) *WorkerService {
	return &WorkerService{
		cfg: cfg}
}

func (s *WorkerService) StartService() error {
	//db init
	dB, err := sqlx.Open("postgres", fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		s.cfg.Postgres.Host, s.cfg.Postgres.Port, s.cfg.Postgres.Username, s.cfg.Postgres.Password, s.cfg.Postgres.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to Postgres: %v", err)
	}
	log.Println("connected to Postgres")
	s.RequestDatabase, err = db.NewRequestDatabase(s.cfg.Postgres.AutoCreate, dB)
	if err != nil {
		return fmt.Errorf("failed to initialize request database: %v", err)
	}

	//rabbitMQ init
	conn, err := amqp.Dial(fmt.Sprintf("amqp://%s:%s@%s:%d/",
		s.cfg.RabbitMQ.Username, s.cfg.RabbitMQ.Password, s.cfg.RabbitMQ.Host, s.cfg.RabbitMQ.Port))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %v", err)
	}
	log.Println("connected to RabbitMQ")
	s.rabbitMQClient, err = conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %v", err)
	}

	//minio init
	s.minioClient, err = minio.New(s.cfg.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s.cfg.Minio.AccessKey, s.cfg.Minio.SecretKey, ""),
		Secure: true,
	})
	if err != nil {
		return fmt.Errorf("failed to init Minio client: %v", err)
	}
	log.Println("connected to Minio")

	s.pixClient = pixelizer.NewClient(s.cfg.Pixelizer.BaseURL, s.cfg.Pixelizer.APIKey)
	if s.cfg.Pixelizer.TimeoutSeconds > 0 {
		s.pixClient.SetHTTPClient(&http.Client{Timeout: time.Duration(s.cfg.Pixelizer.TimeoutSeconds) * time.Second})
	}

	return s.consumePixelizeRequests()
}

// consumePixelizeRequests blocks on the queue until the channel closes.
func (s *WorkerService) consumePixelizeRequests() error {
	msgs, err := s.rabbitMQClient.Consume(
		s.cfg.RabbitMQ.Queue, // queue
		"",                   // consumer
		true,                 // auto-ack
		false,                // exclusive
		false,                // no-local
		false,                // no-wait
		nil,                  // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %v", err)
	}

	for d := range msgs {
		log.Printf("received a message: %s", d.MessageId)
		id, err := strconv.Atoi(d.MessageId)
		if err != nil {
			log.Printf("failed to convert message id to int: %v", err)
			continue
		}
		if err := s.processRequest(id, d); err != nil {
			log.Printf("failed to process request %d: %v", id, err)
			//empty result url marks the request failed
			if err := s.RequestDatabase.UpdateResult(context.Background(), id, "", ""); err != nil {
				log.Printf("failed to update request status: %v", err)
			}
		}
	}
	return nil
}

func (s *WorkerService) processRequest(id int, d amqp.Delivery) error {
	ctx := context.Background()

	var resultURL string
	var err error
	if d.ContentType == "image/jpeg" {
		resultURL, err = s.pixelizeStoredImage(ctx, id)
	} else {
		resultURL, err = s.pixClient.PixelizeURL(ctx, string(d.Body))
	}
	if err != nil {
		return err
	}

	archived, err := s.archiveResult(ctx, id, resultURL)
	if err != nil {
		log.Printf("failed to archive result for request %d: %v", id, err)
		archived = ""
	}

	if err := s.RequestDatabase.UpdateResult(ctx, id, resultURL, archived); err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}

	request, err := s.RequestDatabase.GetRequestByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to reload request: %w", err)
	}
	if request.Email != "" {
		err = s.sendEmail("image pixelized", "your pixelized image is ready --> "+resultURL,
			"<h1>your pixelized image is ready --> "+resultURL+"</h1>", "Pixelizer", s.cfg.Email.From, request.Email)
		if err != nil {
			log.Printf("failed to send email for request %d: %v", id, err)
		}
	}

	log.Printf("successfully processed request %d, image URL: %s", id, resultURL)
	return nil
}

// pixelizeStoredImage fetches the original image the register service put in
// Minio and uploads it to the pixelizer API.
func (s *WorkerService) pixelizeStoredImage(ctx context.Context, id int) (string, error) {
	imageData, err := s.minioClient.GetObject(ctx, s.cfg.Minio.Bucket, strconv.Itoa(id), minio.GetObjectOptions{})
	if err != nil {
		return "", err
	}
	defer imageData.Close()

	imageBytes := new(bytes.Buffer)
	if _, err := io.Copy(imageBytes, imageData); err != nil {
		return "", fmt.Errorf("failed to read image data: %w", err)
	}

	return s.pixClient.PixelizeReader(ctx, imageBytes)
}

// archiveResult fetches the pixelized artifact and stores a copy in Minio,
// returning the archived object name.
func (s *WorkerService) archiveResult(ctx context.Context, id int, resultURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch pixelized image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received non-200 response fetching pixelized image: %d", resp.StatusCode)
	}

	imageBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read pixelized image: %w", err)
	}

	object := strconv.Itoa(id) + "-pixelized"
	_, err = s.minioClient.PutObject(ctx, s.cfg.Minio.Bucket, object,
		bytes.NewReader(imageBytes), int64(len(imageBytes)), minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return "", fmt.Errorf("failed to upload image to Minio: %w", err)
	}
	return object, nil
}

func (s *WorkerService) sendEmail(subject, text, html, fromName, fromEmail, toEmail string) error {
	ms := mailersend.NewMailersend(s.cfg.Email.APIKey)

	ctx := context.Background()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	from := mailersend.From{
		Name:  fromName,
		Email: fromEmail,
	}

	recipients := []mailersend.Recipient{
		{
			Email: toEmail,
		},
	}

	message := ms.Email.NewMessage()

	message.SetFrom(from)
	message.SetRecipients(recipients)
	message.SetSubject(subject)
	message.SetHTML(html)
	message.SetText(text)

	_, err := ms.Email.Send(ctx, message)
	if err != nil {
		return err
	}

	return nil
}
