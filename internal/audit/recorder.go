package audit

/*
Файл recorder.go реализует журнал аудита — движок сбора и персистентности
доменных событий (shipment logged, breach detected, claim paid...).

Ключевые особенности архитектуры:
- Non-blocking Logging: неблокирующий канал отделяет Hot Path (регистрация
  показаний, расчеты) от задержек записи в БД.
- Ordering: канал один и FIFO — события одной транзакции попадают в БД
  в том порядке, в котором их эмитировал вызов (breach_detected строго
  раньше reading_logged, если оба случились в одном LogReading).
- Batching & Efficiency: накопление событий в памяти и пакетная запись
  (Bulk Insert) в PostgreSQL по таймеру или при достижении лимита.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается
  полностью (Final Flush), данные при перезагрузке не теряются.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Storage определяет, куда физически сохраняются события
type Storage interface {
	// WriteBatch сохраняет пачку событий за один запрос
	WriteBatch(ctx context.Context, events []Event) error
}

const defaultBatchSize = 100

type Recorder struct {
	ch     chan Event
	repo   Storage
	logger *zap.Logger
	wg     sync.WaitGroup

	flushInterval time.Duration

	// Защита от Record() после остановки (0 - открыт, 1 - закрыт)
	isClosed int32
}

func NewRecorder(repo Storage, logger *zap.Logger, bufferSize int, flushInterval time.Duration) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Recorder{
		ch:            make(chan Event, bufferSize),
		repo:          repo,
		logger:        logger.Named("audit"),
		flushInterval: flushInterval,
	}
}

func (rec *Recorder) Start() {
	rec.wg.Add(1)
	go rec.worker()
}

// Stop «запирает» вход и ждет, пока воркер допишет остатки
func (rec *Recorder) Stop() {
	atomic.StoreInt32(&rec.isClosed, 1)

	// Крошечная пауза, чтобы уже начатые Record успели проскочить
	time.Sleep(10 * time.Millisecond)

	rec.logger.Info("stopping audit recorder: closing channel and flushing buffer...")
	close(rec.ch)
	rec.wg.Wait()
	rec.logger.Info("audit recorder stopped gracefully")
}

// Record реализует Sink. Никогда не блокирует вызывающего.
func (rec *Recorder) Record(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&rec.isClosed) == 1 {
		rec.logger.Warn("audit event dropped: recorder is stopping", zap.String("kind", event.Kind))
		return
	}

	// Load Shedding: при переполнении буфера событие уходит в обычный лог,
	// чтобы след не потерялся совсем
	select {
	case rec.ch <- event:
	default:
		rec.logger.Error("audit_buffer_overflow",
			zap.String("kind", event.Kind),
			zap.String("trace_id", event.TraceID),
			zap.String("actor", event.Actor),
		)
	}
}

func (rec *Recorder) worker() {
	defer rec.wg.Done()

	batch := make([]Event, 0, defaultBatchSize)
	ticker := time.NewTicker(rec.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к моменту Final Flush может быть закрыт
			if err := rec.repo.WriteBatch(context.Background(), batch); err != nil {
				rec.logger.Error("audit flush failed", zap.Error(err), zap.Int("events", len(batch)))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-rec.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали все остатки, финальный сброс и выход
				flush()
				rec.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= defaultBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
