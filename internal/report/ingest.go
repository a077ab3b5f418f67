package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"review_radar/internal/app"
)

// WriteIngest prints one row per crawl job.
func WriteIngest(w io.Writer, rep app.IngestReport) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"来源", "页数", "抓取", "保留", "丢弃", "重试", "放弃页", "停止原因"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	data := make([][]string, 0, len(rep.Jobs)+1)
	total := 0
	for _, j := range rep.Jobs {
		total += j.Kept
		data = append(data, []string{
			j.Platform,
			strconv.Itoa(j.Pages),
			strconv.Itoa(j.Fetched),
			strconv.Itoa(j.Kept),
			strconv.Itoa(j.Dropped),
			strconv.Itoa(j.Retries),
			fmt.Sprint(len(j.Abandoned)),
			string(j.Stop),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	status := "完成"
	if rep.Partial {
		status = "已中断，已保存部分结果"
	}
	_, err := fmt.Fprintf(w, "共 %d 条评论 (%s)\n", total, status)
	return err
}
