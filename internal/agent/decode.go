package agent

import (
	"errors"
	"fmt"

	"pagevitals/internal/signal"
	"pagevitals/pkg/model"

	"github.com/tidwall/gjson"
)

var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownKind    = errors.New("unknown signal kind")
)

// Decode 将绑定负载解析为信号，Data 为对应的类型化结构
func Decode(payload string) (signal.Signal, error) {
	if !gjson.Valid(payload) {
		return signal.Signal{}, ErrInvalidPayload
	}
	root := gjson.Parse(payload)
	if !root.IsObject() {
		return signal.Signal{}, ErrInvalidPayload
	}
	kind := signal.Kind(root.Get("kind").String())
	if kind == "" {
		return signal.Signal{}, fmt.Errorf("%w: missing kind", ErrInvalidPayload)
	}
	sig := signal.Signal{
		Kind:      kind,
		Timestamp: root.Get("ts").Int(),
		Document:  root.Get("doc").String(),
		Page:      pageInformation(root.Get("page")),
	}

	data := root.Get("data")
	switch kind {
	case signal.KindInit:
		sig.Data = decodeInit(data)
	case signal.KindHints:
		sig.Data = clientHints(data)
	case signal.KindError:
		sig.Data = decodeError(data)
	case signal.KindRejection:
		sig.Data = signal.Rejection{Error: errorInfo(data.Get("error")), Reason: data.Get("reason").String()}
	case signal.KindFrameworkError:
		fe := signal.FrameworkError{Info: data.Get("info").String()}
		if e := errorInfo(data.Get("error")); e != nil {
			fe.Error = *e
		}
		c := data.Get("component")
		fe.Component = signal.ComponentInfo{
			Present: c.Get("present").Bool(),
			Root:    c.Get("root").Bool(),
			Name:    c.Get("name").String(),
			Tag:     c.Get("tag").String(),
			File:    c.Get("file").String(),
		}
		sig.Data = fe
	case signal.KindClick:
		click := signal.Click{}
		data.Get("path").ForEach(func(_, v gjson.Result) bool {
			click.Path = append(click.Path, element(v))
			return true
		})
		if t := data.Get("target"); t.IsObject() {
			el := element(t)
			click.Target = &el
		}
		sig.Data = click
	case signal.KindRoute:
		sig.Data = signal.Route{Type: data.Get("type").String()}
	case signal.KindPaint:
		sig.Data = signal.Paint{
			Name:      data.Get("name").String(),
			StartTime: data.Get("startTime").Float(),
			Raw:       object(data.Get("raw")),
		}
	case signal.KindLCP:
		sig.Data = signal.LCP{StartTime: data.Get("startTime").Float(), Raw: object(data.Get("raw"))}
	case signal.KindFirstInput:
		sig.Data = signal.FirstInput{
			StartTime:       data.Get("startTime").Float(),
			ProcessingStart: data.Get("processingStart").Float(),
			Raw:             object(data.Get("raw")),
		}
	case signal.KindLayoutShift:
		sig.Data = model.LayoutShift{
			StartTime:      data.Get("startTime").Float(),
			Value:          data.Get("value").Float(),
			HadRecentInput: data.Get("hadRecentInput").Bool(),
		}
	case signal.KindNavigation:
		sig.Data = signal.NavigationEntry{
			FetchStart:               data.Get("fetchStart").Float(),
			DomainLookupStart:        data.Get("domainLookupStart").Float(),
			DomainLookupEnd:          data.Get("domainLookupEnd").Float(),
			ConnectStart:             data.Get("connectStart").Float(),
			ConnectEnd:               data.Get("connectEnd").Float(),
			SecureConnectionStart:    data.Get("secureConnectionStart").Float(),
			RequestStart:             data.Get("requestStart").Float(),
			ResponseStart:            data.Get("responseStart").Float(),
			ResponseEnd:              data.Get("responseEnd").Float(),
			DomInteractive:           data.Get("domInteractive").Float(),
			DomContentLoadedEventEnd: data.Get("domContentLoadedEventEnd").Float(),
			LoadEventStart:           data.Get("loadEventStart").Float(),
		}
	case signal.KindResource:
		sig.Data = signal.ResourceEntry{
			Name:                  data.Get("name").String(),
			TransferSize:          data.Get("transferSize").Float(),
			InitiatorType:         data.Get("initiatorType").String(),
			StartTime:             data.Get("startTime").Float(),
			ResponseEnd:           data.Get("responseEnd").Float(),
			DomainLookupStart:     data.Get("domainLookupStart").Float(),
			DomainLookupEnd:       data.Get("domainLookupEnd").Float(),
			ConnectStart:          data.Get("connectStart").Float(),
			ConnectEnd:            data.Get("connectEnd").Float(),
			SecureConnectionStart: data.Get("secureConnectionStart").Float(),
			RequestStart:          data.Get("requestStart").Float(),
			ResponseStart:         data.Get("responseStart").Float(),
		}
	case signal.KindLoad:
		sig.Data = signal.Load{}
	case signal.KindCustom:
		sig.Data = model.CustomAnalyticsData{
			EventCategory: data.Get("eventCategory").String(),
			EventAction:   data.Get("eventAction").String(),
			EventLabel:    data.Get("eventLabel").String(),
			EventValue:    data.Get("eventValue").String(),
		}
	case signal.KindCapability:
		capability := signal.Capability{}
		data.Get("missing").ForEach(func(_, v gjson.Result) bool {
			capability.Missing = append(capability.Missing, v.String())
			return true
		})
		sig.Data = capability
	default:
		return signal.Signal{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return sig, nil
}

func decodeInit(data gjson.Result) signal.Init {
	return signal.Init{
		DocumentID: data.Get("documentId").String(),
		Origin: model.OriginInformation{
			Referrer: data.Get("origin.referrer").String(),
			Type:     data.Get("origin.type").String(),
		},
		Hints: clientHints(data.Get("hints")),
	}
}

func clientHints(h gjson.Result) signal.ClientHints {
	return signal.ClientHints{
		Brand:           h.Get("brand").String(),
		BrandVersion:    h.Get("brandVersion").String(),
		Platform:        h.Get("platform").String(),
		PlatformVersion: h.Get("platformVersion").String(),
		Model:           h.Get("model").String(),
		Mobile:          h.Get("mobile").Bool(),
	}
}

func decodeError(data gjson.Result) signal.ErrorEvent {
	return signal.ErrorEvent{
		IsErrorEvent: data.Get("isErrorEvent").Bool(),
		Message:      data.Get("message").String(),
		Filename:     data.Get("filename").String(),
		Lineno:       int(data.Get("lineno").Int()),
		Colno:        int(data.Get("colno").Int()),
		Error:        errorInfo(data.Get("error")),
		Target: signal.ResourceTarget{
			Src:       data.Get("target.src").String(),
			TagName:   data.Get("target.tagName").String(),
			OuterHTML: data.Get("target.outerHTML").String(),
		},
	}
}

// errorInfo null 或缺失时返回 nil
func errorInfo(v gjson.Result) *signal.ErrorInfo {
	if !v.IsObject() {
		return nil
	}
	return &signal.ErrorInfo{
		Name:    v.Get("name").String(),
		Message: v.Get("message").String(),
		Stack:   v.Get("stack").String(),
	}
}

func element(v gjson.Result) signal.Element {
	el := signal.Element{
		TagName:   v.Get("tagName").String(),
		ID:        v.Get("id").String(),
		Text:      v.Get("text").String(),
		ClassList: []string{},
	}
	v.Get("classList").ForEach(func(_, c gjson.Result) bool {
		el.ClassList = append(el.ClassList, c.String())
		return true
	})
	return el
}

func object(v gjson.Result) map[string]any {
	if m, ok := v.Value().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func pageInformation(v gjson.Result) model.PageInformation {
	return model.PageInformation{
		Host:      v.Get("host").String(),
		Hostname:  v.Get("hostname").String(),
		Href:      v.Get("href").String(),
		Protocol:  v.Get("protocol").String(),
		Origin:    v.Get("origin").String(),
		Port:      v.Get("port").String(),
		Pathname:  v.Get("pathname").String(),
		Search:    v.Get("search").String(),
		Hash:      v.Get("hash").String(),
		Title:     v.Get("title").String(),
		Language:  v.Get("language").String(),
		UserAgent: v.Get("userAgent").String(),
		WinScreen: v.Get("winScreen").String(),
		DocScreen: v.Get("docScreen").String(),
	}
}
