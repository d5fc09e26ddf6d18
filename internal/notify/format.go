package notify

import (
	"fmt"
	"strings"
	"time"

	"kanbansync/internal/model"
	"kanbansync/internal/protocol"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ColumnCallbackPrefix prefixes the callback data of column selection buttons.
const ColumnCallbackPrefix = "status_column_"

const refreshHint = "\n🔄 Используйте /status для обновления"

// DefaultColumnNames are the display names of the translation team's
// column statuses.
func DefaultColumnNames() map[string]string {
	return map[string]string{
		"todo":        "Этап клина",
		"in-progress": "Этап перевода",
		"done":        "Этап редактуры",
		"backlog":     "Бета-рид",
		"review":      "Этап тайпа",
		"testing":     "Клин (ПТ, Баст, айдол)",
	}
}

// Formatter renders notification texts. Column statuses are shown through
// ColumnNames when a display name is configured.
type Formatter struct {
	ColumnNames map[string]string
	Location    *time.Location
}

// NewFormatter starts from DefaultColumnNames; entries in overrides win.
func NewFormatter(overrides map[string]string) *Formatter {
	names := DefaultColumnNames()
	for status, name := range overrides {
		names[status] = name
	}
	return &Formatter{ColumnNames: names, Location: time.Local}
}

func (f *Formatter) columnName(status string) string {
	if name, ok := f.ColumnNames[status]; ok {
		return name
	}
	return status
}

// timestamp formats like toLocaleString("ru-RU"): 10.03.2026, 15:04:05.
func (f *Formatter) timestamp(t time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("02.01.2006, 15:04:05")
}

// PriorityEmoji maps a priority to its colored marker.
func PriorityEmoji(p model.Priority) string {
	switch p {
	case model.PriorityLow:
		return "🔵"
	case model.PriorityMedium:
		return "🟡"
	case model.PriorityHigh:
		return "🔴"
	}
	return "⚪"
}

func labelOrNone(label string) string {
	if label == "" {
		return "нет"
	}
	return label
}

// TaskChange renders a TASK_* event. ok is false when the change carries
// nothing worth notifying about.
func (f *Formatter) TaskChange(t protocol.MessageType, change protocol.TaskChange, at time.Time) (string, bool) {
	title := change.TaskID
	label := ""
	status := ""
	if change.Task != nil {
		title = change.Task.Title
		label = change.Task.Label
		status = change.Task.Status
	}
	if title == "" {
		return "", false
	}

	var b strings.Builder
	switch t {
	case protocol.TypeTaskMoved:
		from := change.FromStatus
		to := change.ToStatus
		if to == "" {
			to = status
		}
		b.WriteString("🔄 Перемещение карточки\n\n")
		fmt.Fprintf(&b, "📋 %s\n", title)
		fmt.Fprintf(&b, "🪦 Из: %s\n", f.columnName(from))
		fmt.Fprintf(&b, "🪬 В: %s\n", f.columnName(to))
		fmt.Fprintf(&b, "🏷️ Метка: %s\n", labelOrNone(label))
	case protocol.TypeTaskCreated:
		b.WriteString("➕ Новая карточка\n\n")
		fmt.Fprintf(&b, "📋 %s\n", title)
		fmt.Fprintf(&b, "📁 Колонка: %s\n", f.columnName(status))
		fmt.Fprintf(&b, "🏷️ Метка: %s\n", labelOrNone(label))
	case protocol.TypeTaskUpdated:
		b.WriteString("✏️ Карточка обновлена\n\n")
		fmt.Fprintf(&b, "📋 %s\n", title)
		fmt.Fprintf(&b, "📁 Колонка: %s\n", f.columnName(status))
		fmt.Fprintf(&b, "🏷️ Метка: %s\n", labelOrNone(label))
	case protocol.TypeTaskDeleted:
		b.WriteString("🗑️ Карточка удалена\n\n")
		fmt.Fprintf(&b, "📋 %s\n", title)
	default:
		return "", false
	}
	fmt.Fprintf(&b, "⏰ %s", f.timestamp(at))
	return b.String(), true
}

// ColumnSelection renders the STATUS_RESPONSE menu: one button per column.
func (f *Formatter) ColumnSelection(chatID int64, status protocol.StatusResponse) Message {
	msg := Message{ChatID: chatID, Markdown: true}
	if len(status.Columns) == 0 {
		msg.Text = "📭 *Колонок нет*"
		return msg
	}
	msg.Text = "📋 *Выберите колонку для просмотра:*"
	for _, c := range status.Columns {
		msg.Buttons = append(msg.Buttons, Button{
			Text: fmt.Sprintf("📂 %s (%d)", c.Title, c.TaskCount),
			Data: ColumnCallbackPrefix + c.Status,
		})
	}
	return msg
}

// ColumnDetail renders a COLUMN_STATUS_RESPONSE.
func (f *Formatter) ColumnDetail(chatID int64, col protocol.ColumnDetail) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 *%s*\n", escape(col.Title))
	fmt.Fprintf(&b, "📊 Карточек: %d\n\n", col.TaskCount)
	if len(col.Tasks) > 0 {
		b.WriteString("*Список карточек:*\n")
		for i, t := range col.Tasks {
			fmt.Fprintf(&b, "%d. %s %s", i+1, PriorityEmoji(t.Priority), escape(t.Title))
			if t.Label != "" {
				fmt.Fprintf(&b, " 🏷️%s", escape(t.Label))
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("📭 Карточек нет")
	}
	b.WriteString("\n" + refreshHint)
	return Message{ChatID: chatID, Text: b.String(), Markdown: true}
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
