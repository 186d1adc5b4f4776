package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings. Fields prefixed with Notify
// are Telegram Markdown templates.
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	ConfigLoadFailed   string
	SessionsLoaded     string
	DBInitFailed       string
	DBMigrationsFailed string
	ServerListening    string
	APIServerError     string
	ShuttingDown       string
	DryRunMode         string
	LiveMode           string

	// State
	StateLoaded     string
	StateStale      string
	StateCorrupt    string
	StateSaveFailed string
	StateReset      string

	// Stream loop
	CycleStart          string
	CycleClosed         string
	NewDayDetected      string
	ResetMinute         string
	MidnightReset       string
	SleepingUntil       string
	WeekendSleep        string
	AliveLog            string
	StaleTick           string
	InvalidTick         string
	SessionsComplete    string
	StreamEnded         string
	IdleTimeout         string
	SubscribeFailed     string
	TradeEntered        string
	TradeComplete       string
	TradeCapReached     string
	JournalWriteFailed  string
	QuotesFetchFailed   string
	NotificationDropped string
	NotifyGraceExpired  string
	NotificationFailed  string

	// Level loader
	LevelLoaderStarted   string
	LevelLoaderCancelled string
	LevelsFetching       string
	LevelLoaderError     string
	LevelsLoaded         string
	LevelsFailed         string
	SessionRevalidated   string
	SessionRevalidateErr string

	// Supervisor
	CycleCompleted    string
	CycleFailed       string
	RetryWait         string
	SupervisorStopped string
	FatalOutcome      string

	// Reconciliation
	ReconClean  string
	ReconOrphan string

	// Notifications
	NotifyStarted      string
	NotifyNewDay       string
	NotifyLevelsReady  string
	NotifyEntry        string
	NotifyExit         string
	NotifyTradeError   string
	NotifyIdleTimeout  string
	NotifyDisconnected string
	NotifyConnLost     string
	NotifyFatal        string
	NotifyStreamError  string
	NotifyBotError     string
	NotifyStopped      string
	NotifyOrphanIntent string
	QuotesUnavailable  string
}

var (
	currentLang Language = LangEN
	messages    *Messages
	mu          sync.RWMutex
)

var messagesEN = Messages{
	Starting:           "Starting breakout trading bot",
	ConfigLoaded:       "Configuration loaded: symbol=%s feed=%s tz=%s sessions=%d",
	ConfigLoadFailed:   "Failed to load configuration: %v",
	SessionsLoaded:     "Session %d (%s): ref %02d:00, window %02d:00-%02d:00, target %s, stop %s",
	DBInitFailed:       "Failed to open journal database: %v",
	DBMigrationsFailed: "Failed to apply journal migrations: %v",
	ServerListening:    "Ops API listening on %s",
	APIServerError:     "Ops API server error: %v",
	ShuttingDown:       "Shutting down",
	DryRunMode:         "DRY RUN: orders are simulated by the paper broker",
	LiveMode:           "LIVE: orders are sent to the broker",

	StateLoaded:     "Loaded state for %s (%d active trades)",
	StateStale:      "Persisted state is from %s, starting fresh for %s",
	StateCorrupt:    "Persisted state unreadable, starting fresh: %v",
	StateSaveFailed: "Failed to save state: %v",
	StateReset:      "Daily state reset for %s",

	CycleStart:          "Starting monitoring (connection #%d)",
	CycleClosed:         "Streamer closing (connection #%d)",
	NewDayDetected:      "New day detected, resetting",
	ResetMinute:         "Midnight reset triggered",
	MidnightReset:       "Midnight reset during streaming",
	SleepingUntil:       "Sleeping %.1f min until next event",
	WeekendSleep:        "Weekend detected. Sleeping %.1f hours",
	AliveLog:            "Alive - %d ticks | Connection #%d",
	StaleTick:           "Stale tick (age: %.0fs) - processing anyway",
	InvalidTick:         "Discarding invalid tick close=%s high=%s low=%s",
	SessionsComplete:    "Sessions complete. Closing streamer.",
	StreamEnded:         "Tick stream ended: %v",
	IdleTimeout:         "No ticks for %ds - reconnecting",
	SubscribeFailed:     "Subscribe failed: %v",
	TradeEntered:        "Trade entered: %s %s #%d",
	TradeComplete:       "Trade complete: %s %s (%s)",
	TradeCapReached:     "Session %s already at its trade cap: %v",
	JournalWriteFailed:  "Journal write failed: %v",
	QuotesFetchFailed:   "Quote fetch failed: %v",
	NotificationDropped: "Notification dropped, queue full",
	NotifyGraceExpired:  "Shutdown grace of %s expired, pending notifications abandoned",
	NotificationFailed:  "Notification send failed: %v",

	LevelLoaderStarted:   "Level loader started (period %s)",
	LevelLoaderCancelled: "Level loader cancelled",
	LevelsFetching:       "Background: loading %s levels (hour %d)",
	LevelLoaderError:     "Error in background level loader: %v",
	LevelsLoaded:         "Background: %s levels loaded (high %s, low %s)",
	LevelsFailed:         "Background: failed to load %s levels: %v",
	SessionRevalidated:   "Broker session revalidated",
	SessionRevalidateErr: "Broker session revalidation failed: %v",

	CycleCompleted:    "Monitor cycle completed: %s (reconnection #%d)",
	CycleFailed:       "ERROR (%d/%d): %v",
	RetryWait:         "Waiting %s before retry",
	SupervisorStopped: "STOPPED after %d consecutive errors",
	FatalOutcome:      "Fatal cycle outcome, stopping: %v",

	ReconClean:  "Reconciliation OK - no pending order intents",
	ReconOrphan: "Order intent %s (%s %s, session %d) was placed but never committed",

	NotifyStarted:      "Bot started (%s)",
	NotifyNewDay:       "*New Trading Day* - All settings reset",
	NotifyLevelsReady:  "*%s Ready*\nHigh: `%s` | Low: `%s`\nEntries after: `%s`",
	NotifyEntry:        "*%s #%d* (%s)\nEntry: `%s` | TP: `%s` | SL: `%s`\n**Recent Quotes:**%s",
	NotifyExit:         "*%s* - %s %s\nEntry: `%s` -> Exit: `%s`\n**Recent Quotes:**%s",
	NotifyTradeError:   "*TRADE ERROR*: %s",
	NotifyIdleTimeout:  "Idle timeout (%ds) - reconnecting",
	NotifyDisconnected: "WebSocket disconnected - reconnecting",
	NotifyConnLost:     "Connection lost - reconnecting",
	NotifyFatal:        "*STOPPED*: %s",
	NotifyStreamError:  "Error: %s",
	NotifyBotError:     "Bot Error #%d",
	NotifyStopped:      "STOPPED after %d errors",
	NotifyOrphanIntent: "*RECONCILE*: %s %s order for %s was placed but never recorded. Check the broker.",
	QuotesUnavailable:  "\n`Quotes unavailable`",
}

var messagesZH = Messages{
	Starting:           "啟動突破交易機器人",
	ConfigLoaded:       "設定已載入：商品=%s 行情=%s 時區=%s 交易時段=%d",
	ConfigLoadFailed:   "載入設定失敗：%v",
	SessionsLoaded:     "時段 %d (%s)：參考 %02d:00，視窗 %02d:00-%02d:00，目標 %s，停損 %s",
	DBInitFailed:       "開啟日誌資料庫失敗：%v",
	DBMigrationsFailed: "套用日誌資料庫遷移失敗：%v",
	ServerListening:    "維運 API 監聽於 %s",
	APIServerError:     "維運 API 錯誤：%v",
	ShuttingDown:       "正在關閉",
	DryRunMode:         "模擬模式：訂單由模擬券商處理",
	LiveMode:           "實盤模式：訂單將送往券商",

	StateLoaded:     "已載入 %s 的狀態（%d 筆持倉）",
	StateStale:      "持久化狀態日期為 %s，%s 重新開始",
	StateCorrupt:    "持久化狀態無法讀取，重新開始：%v",
	StateSaveFailed: "儲存狀態失敗：%v",
	StateReset:      "%s 每日狀態已重置",

	CycleStart:          "開始監控（連線 #%d）",
	CycleClosed:         "關閉串流（連線 #%d）",
	NewDayDetected:      "偵測到新的一天，重置中",
	ResetMinute:         "觸發午夜重置",
	MidnightReset:       "串流中執行午夜重置",
	SleepingUntil:       "休眠 %.1f 分鐘直到下個事件",
	WeekendSleep:        "週末休市，休眠 %.1f 小時",
	AliveLog:            "運作中 - %d 筆行情 | 連線 #%d",
	StaleTick:           "過期行情（延遲 %.0f 秒）- 仍然處理",
	InvalidTick:         "捨棄無效行情 收=%s 高=%s 低=%s",
	SessionsComplete:    "時段結束，關閉串流",
	StreamEnded:         "行情串流結束：%v",
	IdleTimeout:         "%d 秒無行情 - 重新連線",
	SubscribeFailed:     "訂閱失敗：%v",
	TradeEntered:        "已進場：%s %s #%d",
	TradeComplete:       "交易結束：%s %s（%s）",
	TradeCapReached:     "時段 %s 已達交易上限：%v",
	JournalWriteFailed:  "寫入交易日誌失敗：%v",
	QuotesFetchFailed:   "取得報價失敗：%v",
	NotificationDropped: "通知佇列已滿，捨棄通知",
	NotifyGraceExpired:  "關閉等待 %s 已到期，放棄未送出的通知",
	NotificationFailed:  "通知發送失敗：%v",

	LevelLoaderStarted:   "參考價載入器已啟動（週期 %s）",
	LevelLoaderCancelled: "參考價載入器已取消",
	LevelsFetching:       "背景：載入 %s 參考價（%d 時）",
	LevelLoaderError:     "背景參考價載入器錯誤：%v",
	LevelsLoaded:         "背景：%s 參考價已載入（高 %s，低 %s）",
	LevelsFailed:         "背景：%s 參考價載入失敗：%v",
	SessionRevalidated:   "券商連線已重新驗證",
	SessionRevalidateErr: "券商連線重新驗證失敗：%v",

	CycleCompleted:    "監控週期完成：%s（重連 #%d）",
	CycleFailed:       "錯誤（%d/%d）：%v",
	RetryWait:         "等待 %s 後重試",
	SupervisorStopped: "連續 %d 次錯誤後停止",
	FatalOutcome:      "週期致命錯誤，停止：%v",

	ReconClean:  "對帳正常 - 沒有待確認的下單意圖",
	ReconOrphan: "下單意圖 %s（%s %s，時段 %d）已送出但未記錄",

	NotifyStarted:      "機器人已啟動（%s）",
	NotifyNewDay:       "*新交易日* - 所有設定已重置",
	NotifyLevelsReady:  "*%s 就緒*\n高：`%s` | 低：`%s`\n可進場時間：`%s`",
	NotifyEntry:        "*%s #%d*（%s）\n進場：`%s` | 目標：`%s` | 停損：`%s`\n**近期報價：**%s",
	NotifyExit:         "*%s* - %s %s\n進場：`%s` -> 出場：`%s`\n**近期報價：**%s",
	NotifyTradeError:   "*下單錯誤*：%s",
	NotifyIdleTimeout:  "閒置逾時（%d 秒）- 重新連線",
	NotifyDisconnected: "WebSocket 已斷線 - 重新連線",
	NotifyConnLost:     "連線中斷 - 重新連線",
	NotifyFatal:        "*已停止*：%s",
	NotifyStreamError:  "錯誤：%s",
	NotifyBotError:     "機器人錯誤 #%d",
	NotifyStopped:      "連續 %d 次錯誤後停止",
	NotifyOrphanIntent: "*對帳*：%s %s 訂單（%s）已送出但未記錄，請檢查券商。",
	QuotesUnavailable:  "\n`報價無法取得`",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
