package analysis

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/viper"
)

type RatingBucket struct {
	Label   string `mapstructure:"label" json:"label"`
	Ratings []int  `mapstructure:"ratings" json:"ratings"`
}

// KeywordRule matches when any keyword is a literal substring of a review's full text.
type KeywordRule struct {
	Category string   `mapstructure:"category" json:"category"`
	Keywords []string `mapstructure:"keywords" json:"keywords"`
}

// Config is the static rule set of an Engine. Rule and bucket order is significant:
// the first match wins.
type Config struct {
	RatingBuckets     []RatingBucket `mapstructure:"rating_buckets"`
	KeywordRules      []KeywordRule  `mapstructure:"keyword_rules"`
	Uncategorized     string         `mapstructure:"uncategorized"`
	StopWords         []string       `mapstructure:"stop_words"`
	PositiveThreshold float64        `mapstructure:"positive_threshold"`
	NegativeThreshold float64        `mapstructure:"negative_threshold"`
	NeutralScore      float64        `mapstructure:"neutral_score"`
	MinTokenRunes     int            `mapstructure:"min_token_runes"`
	TopWords          int            `mapstructure:"top_words"`
	TopSalient        int            `mapstructure:"top_salient"`
	SampleCount       int            `mapstructure:"sample_count"`
	SampleRunes       int            `mapstructure:"sample_runes"`
	// SampleByVotes lists the platforms whose scopes order each category by
	// helpfulness votes before sampling.
	SampleByVotes []string `mapstructure:"sample_by_votes"`
	HotCount      int      `mapstructure:"hot_count"`
}

func DefaultConfig() Config {
	return Config{
		RatingBuckets: []RatingBucket{
			{Label: "好评", Ratings: []int{4, 5}},
			{Label: "中评", Ratings: []int{3}},
			{Label: "差评", Ratings: []int{1, 2}},
			{Label: "未评分", Ratings: []int{0}},
		},
		KeywordRules: []KeywordRule{
			{Category: "功能问题", Keywords: []string{"功能", "不能", "无法", "失败", "不支持", "缺少", "没有", "不行", "用不了", "bug", "BUG"}},
			{Category: "连接问题", Keywords: []string{"连接", "断开", "连不上", "断连", "蓝牙", "wifi", "WiFi", "网络", "配对", "识别不到", "搜索不到", "找不到"}},
			{Category: "界面体验", Keywords: []string{"界面", "UI", "设计", "美观", "简洁", "复杂", "难用", "操作", "交互", "丑", "好看"}},
			{Category: "性能问题", Keywords: []string{"卡顿", "慢", "卡", "闪退", "崩溃", "耗电", "发热", "内存", "性能", "占用"}},
			{Category: "更新问题", Keywords: []string{"更新", "版本", "升级", "新版", "旧版", "回退", "适配"}},
			{Category: "设备兼容", Keywords: []string{"小米", "红米", "手环", "手表", "耳机", "音箱", "电视", "路由器", "摄像头", "门锁", "空调"}},
		},
		Uncategorized: "其他",
		StopWords: []string{
			"的", "了", "是", "在", "我", "有", "和", "就", "不", "人", "都", "一", "一个",
			"上", "也", "很", "到", "说", "要", "去", "你", "会", "着", "没有", "看", "好",
			"自己", "这", "那", "还", "能", "它", "与", "吗", "什么", "让", "但", "为",
			"以", "被", "给", "等", "这个", "那个", "可以", "只", "又", "其", "把", "因为",
			"所以", "而", "之", "或", "如果", "但是", "就是", "用", "呢", "啊", "吧", "啦",
			"么", "哦", "嗯", "哎", "呀", "哈", "嘛", "哪", "怎么", "为什么", "这样", "那样",
			"app", "App", "APP", "iphone", "iPhone", "ipad", "iPad", "mac", "Mac",
			"iOS", "ios", "软件", "应用", "下载", "使用", "手机", "平板", "电脑",
			"真的", "感觉", "希望", "建议", "时候", "问题", "东西", "事情", "觉得",
		},
		PositiveThreshold: 0.6,
		NegativeThreshold: 0.4,
		NeutralScore:      0.5,
		MinTokenRunes:     2,
		TopWords:          30,
		TopSalient:        20,
		SampleCount:       3,
		SampleRunes:       100,
		SampleByVotes:     []string{"douban_comments", "douban_reviews"},
		HotCount:          100,
	}
}

// Validate rejects configs that could silently drop reviews or misclassify sentiment.
func (c Config) Validate() error {
	var errs []error
	seen := map[int]string{}
	labels := map[string]bool{}
	for _, b := range c.RatingBuckets {
		if b.Label == "" {
			errs = append(errs, errors.New("rating bucket with empty label"))
		} else if labels[b.Label] {
			errs = append(errs, fmt.Errorf("rating bucket %q declared twice", b.Label))
		}
		labels[b.Label] = true
		for _, r := range b.Ratings {
			if r < 0 || r > 5 {
				errs = append(errs, fmt.Errorf("bucket %q: rating %d outside 0..5", b.Label, r))
				continue
			}
			if prev, ok := seen[r]; ok {
				errs = append(errs, fmt.Errorf("rating %d in both %q and %q", r, prev, b.Label))
				continue
			}
			seen[r] = b.Label
		}
	}
	for r := 0; r <= 5; r++ {
		if _, ok := seen[r]; !ok {
			errs = append(errs, fmt.Errorf("rating %d not covered by any bucket", r))
		}
	}
	categories := map[string]bool{}
	for _, k := range c.KeywordRules {
		switch {
		case k.Category == "" || k.Category == c.Uncategorized:
			errs = append(errs, fmt.Errorf("invalid keyword category %q", k.Category))
		case categories[k.Category]:
			// each category is one row of the keyword axis; repeats would count a review twice
			errs = append(errs, fmt.Errorf("keyword category %q declared twice", k.Category))
		}
		categories[k.Category] = true
	}
	if c.Uncategorized == "" {
		errs = append(errs, errors.New("uncategorized label is empty"))
	}
	if c.NegativeThreshold < 0 || c.PositiveThreshold > 1 || c.NegativeThreshold >= c.PositiveThreshold {
		errs = append(errs, fmt.Errorf("thresholds must satisfy 0 <= negative < positive <= 1 (got %v, %v)",
			c.NegativeThreshold, c.PositiveThreshold))
	}
	if c.NeutralScore <= c.NegativeThreshold || c.NeutralScore >= c.PositiveThreshold {
		errs = append(errs, fmt.Errorf("neutral score %v must fall between thresholds", c.NeutralScore))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML/JSON/TOML rules file over DefaultConfig.
// Keys absent from the file keep their defaults; lists present in the file replace the default list.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read rules %s: %w", path, err)
	}
	// mapstructure decodes into existing slices element-wise, so lists given in the file start empty.
	if v.IsSet("rating_buckets") {
		cfg.RatingBuckets = nil
	}
	if v.IsSet("keyword_rules") {
		cfg.KeywordRules = nil
	}
	if v.IsSet("stop_words") {
		cfg.StopWords = nil
	}
	if v.IsSet("sample_by_votes") {
		cfg.SampleByVotes = nil
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode rules %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("rules %s: %w", path, err)
	}
	return cfg.clone(), nil
}

func (c Config) clone() Config {
	out := c
	out.RatingBuckets = make([]RatingBucket, len(c.RatingBuckets))
	for i, b := range c.RatingBuckets {
		out.RatingBuckets[i] = RatingBucket{Label: b.Label, Ratings: slices.Clone(b.Ratings)}
	}
	out.KeywordRules = make([]KeywordRule, len(c.KeywordRules))
	for i, k := range c.KeywordRules {
		out.KeywordRules[i] = KeywordRule{Category: k.Category, Keywords: slices.Clone(k.Keywords)}
	}
	out.StopWords = slices.Clone(c.StopWords)
	out.SampleByVotes = slices.Clone(c.SampleByVotes)
	return out
}
