// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/yasut0ra/recomate/internal/bandit"
)

// RuleBasedResponder renders replies without an LLM: a topic-anchored
// template plus a keyword scan of the utterance for the emotional read.
// It is the fallback the server runs with when no generation backend is
// configured.
type RuleBasedResponder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRuleBasedResponder builds the offline responder.
func NewRuleBasedResponder() *RuleBasedResponder {
	return &RuleBasedResponder{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

var replyTemplates = []string{
	"そういえば、%sの話をしませんか?",
	"%sについて聞かせてください!",
	"最近、%sはどうですか?",
	"%sのこと、ちょっと気になっていました。",
}

var emotionKeywords = map[string][]string{
	"happy":     {"嬉しい", "楽しい", "最高", "うれしい", "好き", "great", "fun", "love", "awesome", "nice"},
	"surprised": {"びっくり", "すごい", "まさか", "驚", "wow", "amazing", "incredible"},
	"sad":       {"悲しい", "つらい", "疲れた", "寂しい", "かなしい", "sad", "tired", "lonely", "miss"},
	"angry":     {"怒", "ムカ", "いらいら", "イライラ", "angry", "annoyed", "hate"},
}

// Respond renders a topic-steering reply and classifies the utterance.
func (r *RuleBasedResponder) Respond(ctx context.Context, utterance string, topic bandit.Topic) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	label := topic.Label
	if label == "" {
		label = topic.ID
	}

	r.mu.Lock()
	tmpl := replyTemplates[r.rng.Intn(len(replyTemplates))]
	r.mu.Unlock()
	reply := fmt.Sprintf(tmpl, label)

	return reply, classifyEmotion(utterance), nil
}

// classifyEmotion scans the utterance for emotive keywords. First
// match in a fixed category order wins; no match reads as neutral.
func classifyEmotion(utterance string) string {
	lower := strings.ToLower(utterance)
	for _, emotion := range []string{"happy", "surprised", "sad", "angry"} {
		for _, kw := range emotionKeywords[emotion] {
			if strings.Contains(lower, kw) {
				return emotion
			}
		}
	}
	return "neutral"
}
