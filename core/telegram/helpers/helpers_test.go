package helpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/timebot/core/logger"
)

type testContext struct {
	tele.Context
	user      *tele.User
	callback  *tele.Callback
	store     map[string]any
	sent      []*tele.SendOptions
	responses []string
}

func newContext(user *tele.User) *testContext {
	return &testContext{user: user, store: map[string]any{}}
}

func (c *testContext) Sender() *tele.User       { return c.user }
func (c *testContext) Chat() *tele.Chat         { return &tele.Chat{ID: 77} }
func (c *testContext) Update() tele.Update      { return tele.Update{ID: 5} }
func (c *testContext) Callback() *tele.Callback { return c.callback }
func (c *testContext) Get(key string) any       { return c.store[key] }
func (c *testContext) Set(key string, v any)    { c.store[key] = v }

func (c *testContext) Send(_ any, opts ...any) error {
	var so *tele.SendOptions
	if len(opts) > 0 {
		so, _ = opts[0].(*tele.SendOptions)
	}
	c.sent = append(c.sent, so)
	return nil
}

func (c *testContext) Respond(resp ...*tele.CallbackResponse) error {
	text := ""
	if len(resp) > 0 {
		text = resp[0].Text
	}
	c.responses = append(c.responses, text)
	return nil
}

func TestSendCountsReplies(t *testing.T) {
	c := newContext(&tele.User{ID: 1})
	msgs, kb := Replies(c)
	assert.Zero(t, msgs)
	assert.False(t, kb)

	require.NoError(t, SendText(c, "plain"))
	require.NoError(t, SendMD(c, "*bold*", &tele.ReplyMarkup{RemoveKeyboard: true}))

	msgs, kb = Replies(c)
	assert.Equal(t, 2, msgs)
	assert.True(t, kb)
	require.Len(t, c.sent, 2)
	assert.Nil(t, c.sent[0])
	assert.Equal(t, tele.ModeMarkdown, c.sent[1].ParseMode)
}

func TestAnswerOnlyOnce(t *testing.T) {
	c := newContext(&tele.User{ID: 1})
	require.NoError(t, Answer(c, "ignored"))
	assert.Empty(t, c.responses, "no callback, nothing to answer")

	c.callback = &tele.Callback{ID: "q"}
	require.NoError(t, Answer(c, "stale"))
	require.NoError(t, Answer(c, ""))
	assert.Equal(t, []string{"stale"}, c.responses)
}

func TestBuildContextIsCached(t *testing.T) {
	c := newContext(&tele.User{ID: 9})
	assert.False(t, Attached(c))

	ctx := BuildContext(c)
	assert.True(t, Attached(c))
	assert.Equal(t, logger.BuildRID(5, 77, 9), logger.RIDFrom(ctx))
	assert.Equal(t, int64(77), logger.ChatIDFrom(ctx))

	ctx = WithHandler(c, "record")
	assert.Equal(t, "record", logger.HandlerFrom(BuildContext(c)))
	assert.Equal(t, logger.RIDFrom(ctx), logger.RIDFrom(BuildContext(c)))
}

func TestSendToWithoutBot(t *testing.T) {
	err := SendTo(context.Background(), nil, &tele.User{ID: 1}, "x")
	assert.ErrorIs(t, err, ErrNoBot)
}

type lookup map[int64]string

func (l lookup) GetUserByTelegramID(_ context.Context, id int64) (string, error) {
	return l[id], nil
}

func TestCurrentUser(t *testing.T) {
	users := lookup{3: "ann"}
	name, err := CurrentUser[string](context.Background(), users, newContext(&tele.User{ID: 3}))
	require.NoError(t, err)
	assert.Equal(t, "ann", name)

	_, err = CurrentUser[string](context.Background(), users, newContext(nil))
	assert.ErrorIs(t, err, ErrNoSender)
}
