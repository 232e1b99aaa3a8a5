package notification

import (
	"fmt"
	"strings"
)

// AlertParams carries the typed fields of the category-specific alert
// endpoints. Each builder reads only the fields its category uses.
type AlertParams struct {
	ContainerName string  `json:"containerName,omitempty"`
	ContainerID   string  `json:"containerId,omitempty"`
	Usage         float64 `json:"usage,omitempty"`
	Available     float64 `json:"available,omitempty"`
	Threshold     float64 `json:"threshold,omitempty"`
	Path          string  `json:"path,omitempty"`
	Success       *bool   `json:"success,omitempty"`
	BackupName    string  `json:"backupName,omitempty"`
	Error         string  `json:"error,omitempty"`
	ServiceName   string  `json:"serviceName,omitempty"`
	Version       string  `json:"version,omitempty"`
	Status        string  `json:"status,omitempty"`
	Severity      string  `json:"severity,omitempty"`
	Message       string  `json:"message,omitempty"`
	Source        string  `json:"source,omitempty"`
}

// AlertBuilder formats one alert type into a Notification.
type AlertBuilder func(p AlertParams) *Notification

// Alerts maps the alert type, as used in the /notify/<type> endpoints,
// to its message template and preference category.
var Alerts = map[string]AlertBuilder{
	"container-down": func(p AlertParams) *Notification {
		return &Notification{
			Title:    "🚨 Container Down",
			Body:     fmt.Sprintf("Container %s is not running", p.ContainerName),
			Type:     "container-down",
			Category: CategoryContainerDown,
			Data: map[string]any{
				"containerName": p.ContainerName,
				"containerId":   p.ContainerID,
				"severity":      "high",
			},
		}
	},
	"high-cpu": func(p AlertParams) *Notification {
		body := fmt.Sprintf("CPU usage at %v%% (threshold: %v%%)", p.Usage, p.Threshold)
		if p.ContainerName != "" {
			body += fmt.Sprintf(" on %s", p.ContainerName)
		}
		return &Notification{
			Title:    "⚠️ High CPU Usage",
			Body:     body,
			Type:     "high-cpu",
			Category: CategoryPerformance,
			Data: map[string]any{
				"metric":    "cpu",
				"value":     p.Usage,
				"threshold": p.Threshold,
			},
		}
	},
	"low-memory": func(p AlertParams) *Notification {
		body := fmt.Sprintf("Memory available: %v%% (threshold: %v%%)", p.Available, p.Threshold)
		if p.ContainerName != "" {
			body += fmt.Sprintf(" on %s", p.ContainerName)
		}
		return &Notification{
			Title:    "⚠️ Low Memory",
			Body:     body,
			Type:     "low-memory",
			Category: CategoryPerformance,
			Data: map[string]any{
				"metric":    "memory",
				"value":     p.Available,
				"threshold": p.Threshold,
			},
		}
	},
	"low-disk": func(p AlertParams) *Notification {
		path := p.Path
		if path == "" {
			path = "/"
		}
		return &Notification{
			Title:    "⚠️ Low Disk Space",
			Body:     fmt.Sprintf("Disk space at %s: %v%% free (threshold: %v%%)", path, p.Available, p.Threshold),
			Type:     "low-disk",
			Category: CategoryPerformance,
			Data: map[string]any{
				"metric":    "disk",
				"path":      path,
				"value":     p.Available,
				"threshold": p.Threshold,
			},
		}
	},
	"backup-complete": func(p AlertParams) *Notification {
		succeeded := p.Success == nil || *p.Success
		title := "✅ Backup Complete"
		body := fmt.Sprintf("Backup %q completed successfully", p.BackupName)
		if !succeeded {
			title = "❌ Backup Failed"
			body = fmt.Sprintf("Backup %q failed: %s", p.BackupName, p.Error)
		}
		return &Notification{
			Title:    title,
			Body:     body,
			Type:     "backup",
			Category: CategoryBackups,
			Data: map[string]any{
				"backupName": p.BackupName,
				"success":    succeeded,
			},
		}
	},
	"deployment": func(p AlertParams) *Notification {
		return &Notification{
			Title:    "🚀 Deployment Update",
			Body:     fmt.Sprintf("%s %s deployment %s", p.ServiceName, p.Version, p.Status),
			Type:     "deployment",
			Category: CategoryDeployments,
			Data: map[string]any{
				"serviceName": p.ServiceName,
				"version":     p.Version,
				"status":      p.Status,
			},
		}
	},
	"security-alert": func(p AlertParams) *Notification {
		body := fmt.Sprintf("[%s] %s", strings.ToUpper(p.Severity), p.Message)
		if p.Source != "" {
			body += fmt.Sprintf(" (from %s)", p.Source)
		}
		return &Notification{
			Title:    "🔒 Security Alert",
			Body:     body,
			Type:     "security",
			Category: CategorySecurity,
			Data: map[string]any{
				"severity": p.Severity,
				"source":   p.Source,
			},
		}
	},
}
