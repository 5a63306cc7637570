package service

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MersadMolaei/Pixelizer/config"
	"github.com/MersadMolaei/Pixelizer/pkg/db"
	"github.com/MersadMolaei/Pixelizer/pkg/models"
)

// RegisterService accepts pixelization requests over HTTP and hands them to
// the worker through RabbitMQ.
type RegisterService struct {
	cfg             *config.Config
	e               *echo.Echo
	RequestDatabase db.RequestDatabase
	rabbitMQClient  *amqp.Channel
	minioClient     *minio.Client
}

func NewRegisterService(cfg *config.Config) *RegisterService {
	return &RegisterService{
		e:   echo.New(),
		cfg: cfg}
}

func (s *RegisterService) StartService() error {
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
		return fmt.Errorf("failed to initialize Minio client: %v", err)
	}
	log.Println("connected to Minio")

	//setting up echo server with middleware
	s.e.Use(middleware.Logger())
	s.e.Use(middleware.Recover())

	v1 := s.e.Group("/api/v1")
	v1.POST("/pixelize", s.RegisterRequest)
	v1.GET("/request/:id", s.GetRequestStatus)

	if err := s.e.Start(s.cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %v", err)
	}

	return nil
}

// RegisterRequest takes either a multipart image file or a source image URL,
// records a pending request and enqueues it for the worker.
func (s *RegisterService) RegisterRequest(c echo.Context) error {
	request := &struct {
		Email string `json:"email" form:"email"`
		URL   string `json:"url" form:"url"`
	}{}
	if err := c.Bind(request); err != nil {
		return c.JSON(http.StatusBadRequest, err)
	}

	imageData, err := extractImageFromRequest(c)
	if err != nil && request.URL == "" {
		return c.JSON(http.StatusBadRequest, "request needs an image file or a url")
	}
	if imageData != nil && request.URL != "" {
		return c.JSON(http.StatusBadRequest, "request must not have both an image file and a url")
	}

	//saving request and getting id
	id, err := s.RequestDatabase.CreateRequest(c.Request().Context(), request.Email, request.URL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, err)
	}

	//publishing to RabbitMQ: image bytes for uploads, the source url otherwise
	publishing := amqp.Publishing{
		ContentType: "text/plain",
		MessageId:   strconv.Itoa(id),
		Body:        []byte(request.URL),
	}
	if imageData != nil {
		publishing.ContentType = "image/jpeg"
		publishing.Body = nil

		//uploading original to Minio, the worker fetches it back by id
		_, err = s.minioClient.PutObject(c.Request().Context(), s.cfg.Minio.Bucket, strconv.Itoa(id),
			bytes.NewReader(imageData), int64(len(imageData)), minio.PutObjectOptions{ContentType: "image/jpeg"})
		if err != nil {
			return c.JSON(http.StatusInternalServerError, err)
		}
	}
	err = s.rabbitMQClient.PublishWithContext(c.Request().Context(), "", s.cfg.RabbitMQ.Queue, false, false, publishing)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{"id": id, "status": models.TaskPending})
}

func extractImageFromRequest(c echo.Context) ([]byte, error) {
	c.Request().ParseMultipartForm(10 << 20) //max 10MB file size
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}

	file, exists := form.File["image"]
	if !exists || len(file) == 0 {
		return nil, fmt.Errorf("image file not found in the req")
	}

	src, err := file[0].Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return io.ReadAll(src)
}

func (s *RegisterService) GetRequestStatus(c echo.Context) error {
	id := c.Param("id")
	intID, err := strconv.Atoi(id)
	if err != nil {
		return c.JSON(http.StatusBadRequest, err)
	}
	request, err := s.RequestDatabase.GetRequestByID(c.Request().Context(), intID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, err)
	}

	switch request.Status {
	case models.TaskPending:
		return c.JSON(http.StatusOK, "req is in process (pending)")
	case models.TaskFailed:
		return c.JSON(http.StatusOK, "pixelization failed, please register the request again")
	default:
		return c.JSON(http.StatusOK, fmt.Sprintf("READY! now you can download the image from: %s", request.ResultURL))
	}
}
