package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"VCPScanner/internal/model"
)

var tierLabels = map[model.Tier]string{
	model.TierPrimary: "全市场扫描",
	model.TierSeed:    "观察池回退",
	model.TierDefault: "默认标的",
}

// FormatScanReport formats a scan result into a Telegram HTML message.
func FormatScanReport(res model.ScanResult) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📈 <b>VCP 扫描结果</b> | %s\n\n", res.StartedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("来源: %s (%s)\n", tierLabels[res.Tier], res.Tier))
	b.WriteString(fmt.Sprintf("耗时: %s\n\n", res.Duration.Round(time.Second)))

	if res.Tier == model.TierDefault {
		b.WriteString("⚠️ 数据源不可用或无标的入选，返回默认标的\n\n")
	}

	for i, c := range res.Candidates {
		name := c.Name
		if name == "" {
			name = c.Code
		}
		b.WriteString(fmt.Sprintf("%d. <b>%s</b> (%s)\n", i+1, html.EscapeString(name), c.Code))

		ind := c.Indicators
		if ind == (model.Indicators{}) {
			continue
		}
		b.WriteString(fmt.Sprintf("   收盘 %.2f | EMA %.2f\n", ind.Close, ind.EMA))
		b.WriteString(fmt.Sprintf("   ATR %.3f (低点 %.3f, ×%.2f)\n", ind.ATR, ind.MinATR, atrRatio(ind)))
		b.WriteString(fmt.Sprintf("   枢轴高点 %.2f (距离 %+.1f%%)\n", ind.PivotHigh, pivotDistance(ind)))
		if ind.MA5 > 0 {
			b.WriteString(fmt.Sprintf("   MA5 乖离 %+.1f%%\n", ind.BiasMA5()))
		}
	}
	return b.String()
}

// FormatHelp lists the supported chat commands.
func FormatHelp() string {
	return "可用命令:\n• /scan 立即扫描\n• /last 查看最近结果"
}

func atrRatio(ind model.Indicators) float64 {
	if ind.MinATR == 0 {
		return 0
	}
	return ind.ATR / ind.MinATR
}

func pivotDistance(ind model.Indicators) float64 {
	if ind.PivotHigh == 0 {
		return 0
	}
	return (ind.Close - ind.PivotHigh) / ind.PivotHigh * 100
}
