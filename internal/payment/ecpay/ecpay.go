package ecpay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/maxim1976/eshop/internal/constants"
)

const (
	SandboxHost    = "https://payment-stage.ecpay.com.tw"
	ProductionHost = "https://payment.ecpay.com.tw"

	CheckoutEndpoint = "/Cashier/AioCheckOut/V5"
	QueryEndpoint    = "/Cashier/QueryTradeInfo/V5"
	RefundEndpoint   = "/CreditDetail/DoAction"

	// MerchantTradeDate 要求的时间格式
	TradeDateLayout = "2006/01/02 15:04:05"

	refundActionRefund = "R"

	defaultTimeout = 30 * time.Second
)

var (
	ErrConfigInvalid    = errors.New("ecpay config invalid")
	ErrRequestFailed    = errors.New("ecpay request failed")
	ErrResponseInvalid  = errors.New("ecpay response invalid")
	ErrSignatureInvalid = errors.New("ecpay signature invalid")
	ErrMethodInvalid    = errors.New("ecpay payment method invalid")
)

// Config ECPay 金流配置
type Config struct {
	MerchantID string // 特店编号
	HashKey    string // 签名 HashKey
	HashIV     string // 签名 HashIV
	Sandbox    bool   // 是否使用测试环境
	BaseURL    string // 网关地址（留空时依 Sandbox 自动选择）
	TimeoutMS  int    // 请求超时（毫秒）
}

// ValidateConfig 校验 ECPay 配置完整性
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.MerchantID) == "" {
		return fmt.Errorf("%w: merchant_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.HashKey) == "" {
		return fmt.Errorf("%w: hash_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.HashIV) == "" {
		return fmt.Errorf("%w: hash_iv is required", ErrConfigInvalid)
	}
	return nil
}

// Host 返回当前环境的网关地址
func (c *Config) Host() string {
	if base := strings.TrimSpace(c.BaseURL); base != "" {
		return strings.TrimRight(base, "/")
	}
	if c.Sandbox {
		return SandboxHost
	}
	return ProductionHost
}

func (c *Config) timeout() time.Duration {
	if c.TimeoutMS > 0 {
		return time.Duration(c.TimeoutMS) * time.Millisecond
	}
	return defaultTimeout
}

// CheckoutInput 发起支付输入
type CheckoutInput struct {
	MerchantTradeNo string
	TradeDate       time.Time
	TotalAmount     int64 // ECPay 仅接受整数新台币
	TradeDesc       string
	ItemName        string
	ReturnURL       string
	ChoosePayment   string
	ClientBackURL   string
	OrderResultURL  string
	Remark          string
	CustomField1    string
	CustomField2    string
	CustomField3    string
	CustomField4    string
}

// CheckoutForm 发起支付输出（前端表单自动提交）
type CheckoutForm struct {
	ActionURL string            `json:"action_url"`
	Method    string            `json:"method"`
	Fields    map[string]string `json:"fields"`
}

// RefundInput 退款请求输入
type RefundInput struct {
	MerchantTradeNo string
	TradeNo         string
	TotalAmount     int64
}

// GenerateCheckMacValue 生成 CheckMacValue 签名
//
// 规则：剔除 CheckMacValue 后按键名排序拼接 k=v，首尾加上
// HashKey/HashIV，整串 URL 编码并转小写，SHA-256 后转大写。
func GenerateCheckMacValue(cfg *Config, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "CheckMacValue" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, params[k]))
	}
	raw := fmt.Sprintf("HashKey=%s&%s&HashIV=%s", cfg.HashKey, strings.Join(pairs, "&"), cfg.HashIV)

	encoded := strings.ToLower(url.QueryEscape(raw))
	sum := sha256.Sum256([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifyCallback 验证回调签名
func VerifyCallback(cfg *Config, form map[string][]string) error {
	if cfg == nil {
		return ErrConfigInvalid
	}
	params := flattenForm(form)
	received := strings.TrimSpace(params["CheckMacValue"])
	if received == "" {
		return fmt.Errorf("%w: CheckMacValue missing", ErrSignatureInvalid)
	}
	expected := GenerateCheckMacValue(cfg, params)
	if received != expected {
		return ErrSignatureInvalid
	}
	return nil
}

// BuildCheckoutForm 构建 ECPay AioCheckOut 表单参数
func BuildCheckoutForm(cfg *Config, input CheckoutInput) (*CheckoutForm, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if input.MerchantTradeNo == "" || input.TotalAmount <= 0 || input.ReturnURL == "" {
		return nil, fmt.Errorf("%w: checkout input incomplete", ErrConfigInvalid)
	}
	if !IsSupportedMethod(input.ChoosePayment) {
		return nil, ErrMethodInvalid
	}
	tradeDesc := input.TradeDesc
	if tradeDesc == "" {
		tradeDesc = "商品購買"
	}
	itemName := input.ItemName
	if itemName == "" {
		itemName = "商品"
	}

	fields := map[string]string{
		"MerchantID":        cfg.MerchantID,
		"MerchantTradeNo":   input.MerchantTradeNo,
		"MerchantTradeDate": input.TradeDate.Format(TradeDateLayout),
		"PaymentType":       "aio",
		"TotalAmount":       strconv.FormatInt(input.TotalAmount, 10),
		"TradeDesc":         tradeDesc,
		"ItemName":          itemName,
		"ReturnURL":         input.ReturnURL,
		"ChoosePayment":     input.ChoosePayment,
		"ClientBackURL":     input.ClientBackURL,
		"OrderResultURL":    input.OrderResultURL,
		"Remark":            input.Remark,
		"NeedExtraPaidInfo": "Y",
		"InvoiceMark":       "N",
		"CustomField1":      input.CustomField1,
		"CustomField2":      input.CustomField2,
		"CustomField3":      input.CustomField3,
		"CustomField4":      input.CustomField4,
	}
	// 空值不参与签名也不送出
	for k, v := range fields {
		if v == "" {
			delete(fields, k)
		}
	}
	fields["CheckMacValue"] = GenerateCheckMacValue(cfg, fields)

	return &CheckoutForm{
		ActionURL: cfg.Host() + CheckoutEndpoint,
		Method:    http.MethodPost,
		Fields:    fields,
	}, nil
}

// QueryTradeInfo 查询交易状态
func QueryTradeInfo(ctx context.Context, cfg *Config, merchantTradeNo string) (map[string]string, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(merchantTradeNo) == "" {
		return nil, fmt.Errorf("%w: merchant_trade_no is required", ErrConfigInvalid)
	}
	params := map[string]string{
		"MerchantID":      cfg.MerchantID,
		"MerchantTradeNo": merchantTradeNo,
		"TimeStamp":       strconv.FormatInt(time.Now().Unix(), 10),
	}
	params["CheckMacValue"] = GenerateCheckMacValue(cfg, params)
	return postForm(ctx, cfg, cfg.Host()+QueryEndpoint, params)
}

// SubmitRefund 提交信用卡退款（Action=R）
//
// 注意：部分退款仍可能需在 ECPay 后台人工放行。
func SubmitRefund(ctx context.Context, cfg *Config, input RefundInput) (map[string]string, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if input.MerchantTradeNo == "" || input.TradeNo == "" || input.TotalAmount <= 0 {
		return nil, fmt.Errorf("%w: refund input incomplete", ErrConfigInvalid)
	}
	params := map[string]string{
		"MerchantID":      cfg.MerchantID,
		"MerchantTradeNo": input.MerchantTradeNo,
		"TradeNo":         input.TradeNo,
		"Action":          refundActionRefund,
		"TotalAmount":     strconv.FormatInt(input.TotalAmount, 10),
		"TimeStamp":       strconv.FormatInt(time.Now().Unix(), 10),
	}
	params["CheckMacValue"] = GenerateCheckMacValue(cfg, params)
	return postForm(ctx, cfg, cfg.Host()+RefundEndpoint, params)
}

// IsSupportedMethod 判断 ECPay 支持的支付方式
func IsSupportedMethod(method string) bool {
	switch method {
	case constants.PaymentMethodCredit,
		constants.PaymentMethodWebATM,
		constants.PaymentMethodATM,
		constants.PaymentMethodCVS,
		constants.PaymentMethodBarcode:
		return true
	default:
		return false
	}
}

func postForm(ctx context.Context, cfg *Config, endpoint string, params map[string]string) (map[string]string, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	client := &http.Client{Timeout: cfg.timeout()}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	return parseGatewayBody(string(body))
}

// parseGatewayBody 解析网关回传的 URL 编码键值串
func parseGatewayBody(body string) (map[string]string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty body", ErrResponseInvalid)
	}
	values, err := url.ParseQuery(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	result := make(map[string]string, len(values))
	for k := range values {
		result[k] = values.Get(k)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrResponseInvalid)
	}
	return result, nil
}

func flattenForm(form map[string][]string) map[string]string {
	params := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}
	return params
}
