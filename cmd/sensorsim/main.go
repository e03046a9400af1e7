package main

/*
sensorsim — имитатор температурного датчика для dev-стенда.
Шлет показания в API от имени oracle-актора. Профиль "breach"
выводит температуру за коридор в середине прогона, чтобы руками
прогонять сценарий нарушения холодовой цепи и выплаты.
*/

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
)

type readingPayload struct {
	Temperature float64 `json:"temperature"`
	Location    string  `json:"location"`
}

func main() {
	var (
		apiURL     = flag.String("api", "http://localhost:8080", "адрес coldchain API")
		token      = flag.String("token", "", "Bearer токен oracle-актора")
		shipmentID = flag.String("shipment", "", "ID отправления")
		count      = flag.Int("count", 20, "сколько показаний отправить")
		interval   = flag.Duration("interval", 2*time.Second, "пауза между показаниями")
		profile    = flag.String("profile", "nominal", "nominal | breach")
	)
	flag.Parse()

	if *token == "" || *shipmentID == "" {
		log.Fatal("flags -token and -shipment are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("%s/v1/shipments/%s/readings", *apiURL, *shipmentID)

	for i := 0; i < *count; i++ {
		if ctx.Err() != nil {
			log.Print("interrupted, stopping")
			return
		}

		payload := readingPayload{
			Temperature: temperature(*profile, i, *count),
			Location:    fakeGPS(i),
		}

		if err := send(ctx, client, url, *token, payload); err != nil {
			log.Printf("reading %d failed: %v", i+1, err)
		} else {
			log.Printf("reading %d sent: %.1f C at %s", i+1, payload.Temperature, payload.Location)
		}

		select {
		case <-time.After(*interval):
		case <-ctx.Done():
		}
	}
}

// temperature генерирует показание по профилю: шум вокруг 5 °C,
// для breach — выброс до 12 °C в середине прогона
func temperature(profile string, i, count int) float64 {
	base := 5.0 + (rand.Float64()-0.5)*2.0 // 4.0 - 6.0
	if profile == "breach" && i == count/2 {
		return 12.0
	}
	return base
}

func fakeGPS(i int) string {
	// Маршрут «едем на северо-восток»
	return fmt.Sprintf("%.4f,%.4f", 55.75+float64(i)*0.01, 37.61+float64(i)*0.015)
}

// send отправляет показание с ретраями: сетевые сбои датчика не должны
// терять точку телеметрии
func send(ctx context.Context, client *http.Client, url, token string, payload readingPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
	)

	return r.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Trace-Id", uuid.NewString())

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// 4xx не ретраим: доставленное отправление или переполненный
		// журнал повторами не лечатся
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Unrecoverable(fmt.Errorf("api rejected reading: %s", resp.Status))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("api error: %s", resp.Status)
		}
		return nil
	})
}
