// File: internal/usecase/avatar_uc.go
package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"avatar-live-server/internal/domain/model"
)

// Compile-time check
var _ AvatarUseCase = (*avatarUC)(nil)

// AvatarUseCase translates emotions and requests into renderer commands and
// tracks per-session avatar state.
type AvatarUseCase interface {
	SetEmotion(sess *model.Session, emotionOrIntent string, intensity float64) model.AvatarCommand
	SetExpression(sess *model.Session, name string) model.AvatarCommand
	SetMotion(sess *model.Session, group string, index int) model.AvatarCommand
	SetSpeaking(sess *model.Session, speaking bool) model.AvatarCommand
	Status(sess *model.Session) model.AvatarStatus
	Model() model.AvatarModel
}

type AvatarConfig struct {
	BaseDuration time.Duration
	Expressions  map[string]string // emotion or intent -> expression id
	MotionGroups map[string]string // logical name (idle, speaking...) -> model group
}

type avatarUC struct {
	def *model.AvatarModel
	cfg AvatarConfig
	now func() time.Time
	log zerolog.Logger
}

func NewAvatarUseCase(def *model.AvatarModel, cfg AvatarConfig, logger *zerolog.Logger) *avatarUC {
	if def == nil {
		def = &model.AvatarModel{}
	}
	if len(def.Expressions) == 0 {
		def.Expressions = append([]string(nil), model.DefaultExpressions...)
	}
	if cfg.BaseDuration <= 0 {
		cfg.BaseDuration = 2 * time.Second
	}
	lc := make(map[string]string, len(cfg.Expressions))
	for k, v := range cfg.Expressions {
		lc[strings.ToLower(strings.TrimSpace(k))] = v
	}
	cfg.Expressions = lc
	return &avatarUC{
		def: def,
		cfg: cfg,
		now: time.Now,
		log: logger.With().Str("component", "avatar").Logger(),
	}
}

func (a *avatarUC) SetEmotion(sess *model.Session, emotionOrIntent string, intensity float64) model.AvatarCommand {
	intensity = clamp01(intensity)
	key := strings.ToLower(strings.TrimSpace(emotionOrIntent))

	expr, ok := a.cfg.Expressions[key]
	if !ok {
		expr = a.neutral()
	}
	if !a.def.HasExpression(expr) {
		expr = a.neutral()
	}
	emo := model.ParseEmotion(key)
	if emo == model.EmotionNeutral {
		emo = model.ParseEmotion(expr)
	}
	sess.RecordEmotion(emo, intensity, a.now())
	sess.SetExpression(expr)

	dur := a.cfg.BaseDuration.Seconds() * (0.5 + 0.5*intensity)
	return model.AvatarCommand{
		Status:     model.CommandSuccess,
		Type:       model.CommandExpression,
		Expression: expr,
		Duration:   dur,
		Intensity:  intensity,
	}
}

func (a *avatarUC) SetExpression(sess *model.Session, name string) model.AvatarCommand {
	expr := strings.TrimSpace(name)
	if !a.def.HasExpression(expr) {
		if mapped, ok := a.cfg.Expressions[strings.ToLower(expr)]; ok && a.def.HasExpression(mapped) {
			expr = mapped
		} else {
			a.log.Debug().Str("expression", name).Msg("unknown expression, using neutral")
			expr = a.neutral()
		}
	}
	sess.SetExpression(expr)
	return model.AvatarCommand{
		Status:     model.CommandSuccess,
		Type:       model.CommandExpression,
		Expression: expr,
		Duration:   a.cfg.BaseDuration.Seconds(),
		Intensity:  1,
	}
}

// SetMotion leaves the session untouched when the request is invalid.
func (a *avatarUC) SetMotion(sess *model.Session, group string, index int) model.AvatarCommand {
	g := a.resolveGroup(group)
	count, ok := a.def.MotionCount(g)
	if !ok {
		return model.AvatarCommand{Status: model.CommandError, Type: model.CommandMotion,
			Message: fmt.Sprintf("motion group %q not found", group)}
	}
	if index < 0 || index >= count {
		return model.AvatarCommand{Status: model.CommandError, Type: model.CommandMotion,
			Message: fmt.Sprintf("motion index %d out of range [0, %d)", index, count)}
	}
	sess.SetMotion(g, index)
	return model.AvatarCommand{
		Status: model.CommandSuccess,
		Type:   model.CommandMotion,
		Motion: &model.MotionRef{Group: g, Index: index},
	}
}

func (a *avatarUC) SetSpeaking(sess *model.Session, speaking bool) model.AvatarCommand {
	sess.SetSpeaking(speaking)
	logical := "idle"
	if speaking {
		logical = "speaking"
	}
	return a.SetMotion(sess, logical, 0)
}

func (a *avatarUC) Status(sess *model.Session) model.AvatarStatus {
	return model.AvatarStatus{
		Expression:     sess.Expression(),
		Motion:         sess.Motion(),
		Speaking:       sess.Speaking(),
		RecentEmotions: sess.RecentEmotions(5),
		Expressions:    append([]string(nil), a.def.Expressions...),
		MotionGroups:   a.motionGroups(),
	}
}

func (a *avatarUC) Model() model.AvatarModel {
	m := *a.def
	m.Expressions = append([]string(nil), a.def.Expressions...)
	m.Motions = a.motionGroups()
	return m
}

func (a *avatarUC) motionGroups() map[string]int {
	out := make(map[string]int, len(a.def.Motions))
	for g, n := range a.def.Motions {
		out[g] = n
	}
	return out
}

// resolveGroup accepts either a model group or a configured logical alias.
func (a *avatarUC) resolveGroup(group string) string {
	if _, ok := a.def.Motions[group]; ok {
		return group
	}
	if g, ok := a.cfg.MotionGroups[strings.ToLower(group)]; ok {
		return g
	}
	return group
}

func (a *avatarUC) neutral() string {
	if v, ok := a.cfg.Expressions[string(model.EmotionNeutral)]; ok && a.def.HasExpression(v) {
		return v
	}
	if a.def.HasExpression(string(model.EmotionNeutral)) {
		return string(model.EmotionNeutral)
	}
	exprs := append([]string(nil), a.def.Expressions...)
	sort.Strings(exprs)
	return exprs[0]
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
