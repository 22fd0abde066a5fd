package enforcer

import (
	"context"
	"errors"
	"testing"

	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/disgoorg/snowflake/v2"
)

type fakeSubs struct {
	verified map[snowflake.ID]bool
	premium  map[snowflake.ID]bool
	wants    map[snowflake.ID]map[exams.Code]bool
}

func (f *fakeSubs) IsVerified(id snowflake.ID) bool { return f.verified[id] }
func (f *fakeSubs) IsPremium(id snowflake.ID) bool  { return f.premium[id] }
func (f *fakeSubs) WantsExam(id snowflake.ID, code exams.Code) bool {
	return f.wants[id][code]
}

type fakeRedeemer struct {
	redeemed []exams.Code
}

func (f *fakeRedeemer) RedeemFor(_ context.Context, _ snowflake.ID, code exams.Code) error {
	f.redeemed = append(f.redeemed, code)
	return nil
}

type fakeMessenger struct {
	sent []string
	err  error
}

func (f *fakeMessenger) SendChannelMessage(_ context.Context, _ snowflake.ID, content string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, content)
	return nil
}

type fakeModerator struct {
	bans, unbans []snowflake.ID
	banErr       error
}

func (f *fakeModerator) BanMember(_ context.Context, _, userID snowflake.ID) error {
	if f.banErr != nil {
		return f.banErr
	}
	f.bans = append(f.bans, userID)
	return nil
}

func (f *fakeModerator) UnbanMember(_ context.Context, _, userID snowflake.ID) error {
	f.unbans = append(f.unbans, userID)
	return nil
}

func testDirectory() *exams.Directory {
	return exams.NewDirectory(
		[]exams.Group{{Code: exams.TOLCI, GuildID: snowflake.ID(10), ChannelID: snowflake.ID(11)}},
		&exams.Group{GuildID: snowflake.ID(90), ChannelID: snowflake.ID(91)},
	)
}

func TestHandleJoinAdmitsEntitledMember(t *testing.T) {
	subs := &fakeSubs{
		verified: map[snowflake.ID]bool{1: true},
		wants:    map[snowflake.ID]map[exams.Code]bool{1: {exams.TOLCI: true}},
	}
	red := &fakeRedeemer{}
	msg := &fakeMessenger{}
	mod := &fakeModerator{}
	e := New(testDirectory(), subs, red, msg, mod, "https://github.com/o/r")

	admitted, err := e.HandleJoin(context.Background(), snowflake.ID(10), snowflake.ID(1), "John")
	if err != nil {
		t.Fatal(err)
	}
	if !admitted {
		t.Error("entitled member was not admitted")
	}
	if len(mod.bans) != 0 || len(mod.unbans) != 0 {
		t.Error("admitted member saw moderation actions")
	}
	if len(red.redeemed) != 1 || red.redeemed[0] != exams.TOLCI {
		t.Errorf("invite not consumed: %v", red.redeemed)
	}
}

func TestHandleJoinEvictsUnverified(t *testing.T) {
	subs := &fakeSubs{verified: map[snowflake.ID]bool{}}
	msg := &fakeMessenger{}
	mod := &fakeModerator{}
	e := New(testDirectory(), subs, &fakeRedeemer{}, msg, mod, "https://github.com/o/r")

	admitted, err := e.HandleJoin(context.Background(), snowflake.ID(10), snowflake.ID(2), "Eve")
	if err != nil {
		t.Fatal(err)
	}
	if admitted {
		t.Error("unverified member admitted")
	}
	if len(msg.sent) != 1 {
		t.Errorf("warn message count = %d, want 1", len(msg.sent))
	}
	if len(mod.bans) != 1 || len(mod.unbans) != 1 {
		t.Errorf("bans=%d unbans=%d, want 1 and 1", len(mod.bans), len(mod.unbans))
	}
}

func TestHandleJoinEvictsVerifiedButUnsubscribed(t *testing.T) {
	subs := &fakeSubs{verified: map[snowflake.ID]bool{2: true}}
	mod := &fakeModerator{}
	e := New(testDirectory(), subs, &fakeRedeemer{}, &fakeMessenger{}, mod, "")

	admitted, _ := e.HandleJoin(context.Background(), snowflake.ID(10), snowflake.ID(2), "Eve")
	if admitted {
		t.Error("member without the exam selection admitted")
	}
	if len(mod.unbans) != 1 {
		t.Error("unban missing")
	}
}

// The warn message failing must not stop the removal or the unban.
func TestEvictionSurvivesMessengerFailure(t *testing.T) {
	subs := &fakeSubs{}
	msg := &fakeMessenger{err: errors.New("transport down")}
	mod := &fakeModerator{}
	e := New(testDirectory(), subs, &fakeRedeemer{}, msg, mod, "")

	admitted, err := e.HandleJoin(context.Background(), snowflake.ID(10), snowflake.ID(2), "Eve")
	if err != nil {
		t.Fatalf("eviction error = %v", err)
	}
	if admitted {
		t.Error("member admitted")
	}
	if len(mod.bans) != 1 || len(mod.unbans) != 1 {
		t.Error("removal or unban skipped after messaging failure")
	}
}

// A failed removal still attempts the unban.
func TestEvictionUnbansAfterBanFailure(t *testing.T) {
	subs := &fakeSubs{}
	mod := &fakeModerator{banErr: errors.New("missing permission")}
	e := New(testDirectory(), subs, &fakeRedeemer{}, &fakeMessenger{}, mod, "")

	_, err := e.HandleJoin(context.Background(), snowflake.ID(10), snowflake.ID(2), "Eve")
	if err == nil {
		t.Error("ban failure not surfaced")
	}
	if len(mod.unbans) != 1 {
		t.Error("unban skipped after ban failure")
	}
}

func TestHandleJoinPremiumGuild(t *testing.T) {
	subs := &fakeSubs{
		verified: map[snowflake.ID]bool{1: true, 2: true},
		premium:  map[snowflake.ID]bool{1: true},
	}
	red := &fakeRedeemer{}
	mod := &fakeModerator{}
	e := New(testDirectory(), subs, red, &fakeMessenger{}, mod, "")

	admitted, _ := e.HandleJoin(context.Background(), snowflake.ID(90), snowflake.ID(1), "Don")
	if !admitted {
		t.Error("premium member not admitted to premium guild")
	}

	admitted, _ = e.HandleJoin(context.Background(), snowflake.ID(90), snowflake.ID(2), "Eve")
	if admitted {
		t.Error("non-premium member admitted to premium guild")
	}
	if len(mod.bans) != 1 {
		t.Error("non-premium member not removed")
	}
}

func TestHandleJoinUnknownGuild(t *testing.T) {
	mod := &fakeModerator{}
	e := New(testDirectory(), &fakeSubs{}, &fakeRedeemer{}, &fakeMessenger{}, mod, "")

	admitted, err := e.HandleJoin(context.Background(), snowflake.ID(555), snowflake.ID(1), "X")
	if err != nil || !admitted {
		t.Errorf("unknown guild: admitted=%v err=%v, want true, nil", admitted, err)
	}
	if len(mod.bans) != 0 {
		t.Error("moderation fired for a guild outside the directory")
	}
}
