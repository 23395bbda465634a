package geocode

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mockloc/mockloc/internal/geo"
)

const baiduGeocodingPath = "/geocoding/v3/"

// BaiduConfig configures the Baidu geocoding client.
type BaiduConfig struct {
	BaseURL string
	AK      string
	// SK enables request signing when set.
	SK      string
	Timeout time.Duration
}

// Baidu geocodes through the Baidu Maps web API. Results are BD-09.
type Baidu struct {
	client *resty.Client
	ak, sk string
}

type baiduResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
	Result  struct {
		Location struct {
			Lng float64 `json:"lng"`
			Lat float64 `json:"lat"`
		} `json:"location"`
		Precise    int    `json:"precise"`
		Confidence int    `json:"confidence"`
		Level      string `json:"level"`
	} `json:"result"`
}

// NewBaidu creates a Baidu client.
func NewBaidu(cfg BaiduConfig) *Baidu {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.map.baidu.com"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Baidu{client: client, ak: cfg.AK, sk: cfg.SK}
}

func (b *Baidu) Name() string { return "baidu" }

// Geocode implements Geocoder.
func (b *Baidu) Geocode(ctx context.Context, address string) (Result, error) {
	query := quote("address=" + address + "&output=json&ak=" + b.ak)
	if b.sk != "" {
		query += "&sn=" + b.sign(baiduGeocodingPath, query)
	}

	var out baiduResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get(baiduGeocodingPath + "?" + query)
	if err != nil {
		return Result{}, err
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("unexpected status %s", resp.Status())
	}

	switch out.Status {
	case 0:
	case 1, 2:
		// 1 is a server side miss, 2 an unparsable address
		return Result{}, ErrNotFound
	default:
		msg := out.Message
		if msg == "" {
			msg = out.Msg
		}
		return Result{}, fmt.Errorf("baidu status %d: %s", out.Status, msg)
	}

	return Result{
		Latitude:   out.Result.Location.Lat,
		Longitude:  out.Result.Location.Lng,
		Datum:      geo.BD09,
		Address:    address,
		Confidence: float64(out.Result.Confidence) / 100,
	}, nil
}

// sign computes the sn parameter over the already quoted query.
func (b *Baidu) sign(path, query string) string {
	sum := md5.Sum([]byte(url.QueryEscape(path + "?" + query + b.sk)))
	return hex.EncodeToString(sum[:])
}

const quoteSafe = "/:=&?#+!$,;'@()*[]"

// quote percent-encodes s leaving URL structure characters untouched.
func quote(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '-', c == '_', c == '.', c == '~', strings.IndexByte(quoteSafe, c) >= 0:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "%%%02X", c)
		}
	}
	return sb.String()
}
