package services

import (
	"sync"
	"testing"
	"time"

	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBingeLinksRootQuestion(t *testing.T) {
	f := newGraphFixture()

	root := &models.Question{Slug: "root-q", Question: "root?", GuruTypeID: 1, Source: models.SourceUser}
	require.NoError(t, f.questions.Create(root))

	owner := uint(7)
	binge, err := f.graph.CreateBinge(1, &owner, root)
	require.NoError(t, err)
	require.NotNil(t, binge.RootQuestionID)
	assert.Equal(t, root.ID, *binge.RootQuestionID)
	assert.Equal(t, owner, *binge.OwnerID)

	stored, err := f.questions.GetByID(root.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.BingeID)
	assert.Equal(t, binge.ID, *stored.BingeID)
}

func TestGetOrCreateThreadBingeIdempotent(t *testing.T) {
	f := newGraphFixture()
	integration := &models.Integration{BaseModel: models.BaseModel{ID: 3}, GuruTypeID: 1}

	thread1, binge1, err := f.graph.GetOrCreateThreadBinge("171.001", integration)
	require.NoError(t, err)

	thread2, binge2, err := f.graph.GetOrCreateThreadBinge("171.001", integration)
	require.NoError(t, err)

	assert.Equal(t, thread1.ID, thread2.ID)
	assert.Equal(t, binge1.ID, binge2.ID)
	assert.Equal(t, 1, f.binges.count())
}

func TestGetOrCreateThreadBingeConcurrentFirstArrival(t *testing.T) {
	f := newGraphFixture()
	integration := &models.Integration{BaseModel: models.BaseModel{ID: 3}, GuruTypeID: 1}

	const racers = 8
	var wg sync.WaitGroup
	bingeIDs := make([]string, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, binge, err := f.graph.GetOrCreateThreadBinge("ts-race", integration)
			if assert.NoError(t, err) {
				bingeIDs[i] = binge.ID.String()
			}
		}(i)
	}
	wg.Wait()

	for _, id := range bingeIDs {
		assert.Equal(t, bingeIDs[0], id)
	}
	// Orphan binges from losing racers must have been cleaned up.
	assert.Equal(t, 1, f.binges.count())
}

func TestCheckBingeAuth(t *testing.T) {
	f := newGraphFixture()
	f.guruTypes.maintainers[1] = []uint{42}

	owner := uint(10)
	anonymous := &models.Binge{GuruTypeID: 1}
	owned := &models.Binge{GuruTypeID: 1, OwnerID: &owner}

	ownerUser := &models.User{BaseModel: models.BaseModel{ID: 10}}
	stranger := &models.User{BaseModel: models.BaseModel{ID: 11}}
	admin := &models.User{BaseModel: models.BaseModel{ID: 12}, IsAdmin: true}
	maintainer := &models.User{BaseModel: models.BaseModel{ID: 42}}

	cases := []struct {
		name  string
		binge *models.Binge
		user  *models.User
		want  bool
	}{
		{"anonymous binge, nil user", anonymous, nil, true},
		{"anonymous binge, any user", anonymous, stranger, true},
		{"owned binge, nil user", owned, nil, false},
		{"owned binge, owner", owned, ownerUser, true},
		{"owned binge, stranger", owned, stranger, false},
		{"owned binge, admin", owned, admin, true},
		{"owned binge, maintainer", owned, maintainer, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.graph.CheckBingeAuth(tc.binge, tc.user)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSearchQuestionSlugBeforeText(t *testing.T) {
	f := newGraphFixture()
	guru := &models.GuruType{BaseModel: models.BaseModel{ID: 1}, Slug: "k8s"}

	bySlug := &models.Question{Slug: "target-slug", Question: "original text", GuruTypeID: 1, Source: models.SourceUser}
	byText := &models.Question{Slug: "other-slug", Question: "search text", GuruTypeID: 1, Source: models.SourceUser}
	require.NoError(t, f.questions.Create(bySlug))
	require.NoError(t, f.questions.Create(byText))

	got, err := f.graph.SearchQuestion(nil, guru, nil, "target-slug", "search text", SearchOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "target-slug", got.Slug)

	got, err = f.graph.SearchQuestion(nil, guru, nil, "missing-slug", "search text", SearchOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "other-slug", got.Slug)
}

func TestSearchQuestionScopedToBinge(t *testing.T) {
	f := newGraphFixture()
	guru := &models.GuruType{BaseModel: models.BaseModel{ID: 1}, Slug: "k8s"}

	binge, err := f.graph.CreateBinge(1, nil, nil)
	require.NoError(t, err)
	other, err := f.graph.CreateBinge(1, nil, nil)
	require.NoError(t, err)

	inOther := &models.Question{Slug: "shared-slug", Question: "q", GuruTypeID: 1, Source: models.SourceUser, BingeID: &other.ID}
	require.NoError(t, f.questions.Create(inOther))

	got, err := f.graph.SearchQuestion(nil, guru, &binge.ID, "shared-slug", "", SearchOptions{})
	require.NoError(t, err)
	assert.Nil(t, got)

	// Root-scope search (nil binge) must not see binge questions either.
	got, err = f.graph.SearchQuestion(nil, guru, nil, "shared-slug", "", SearchOptions{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSearchQuestionSourceGating(t *testing.T) {
	f := newGraphFixture()
	guru := &models.GuruType{BaseModel: models.BaseModel{ID: 1}, Slug: "k8s"}

	apiQ := &models.Question{Slug: "api-q", Question: "api q", GuruTypeID: 1, Source: models.SourceAPI}
	widgetQ := &models.Question{Slug: "widget-q", Question: "widget q", GuruTypeID: 1, Source: models.SourceWidget}
	require.NoError(t, f.questions.Create(apiQ))
	require.NoError(t, f.questions.Create(widgetQ))

	got, err := f.graph.SearchQuestion(nil, guru, nil, "api-q", "", SearchOptions{})
	require.NoError(t, err)
	assert.Nil(t, got, "API questions hidden by default")

	got, err = f.graph.SearchQuestion(nil, guru, nil, "api-q", "", SearchOptions{IncludeAPI: true})
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = f.graph.SearchQuestion(nil, guru, nil, "widget-q", "", SearchOptions{OnlyWidget: true})
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = f.graph.SearchQuestion(nil, guru, nil, "widget-q", "", SearchOptions{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSearchQuestionBingeAuth(t *testing.T) {
	f := newGraphFixture()
	guru := &models.GuruType{BaseModel: models.BaseModel{ID: 1}, Slug: "k8s"}

	owner := uint(5)
	binge, err := f.graph.CreateBinge(1, &owner, nil)
	require.NoError(t, err)

	stranger := &models.User{BaseModel: models.BaseModel{ID: 99}}
	_, err = f.graph.SearchQuestion(stranger, guru, &binge.ID, "any", "", SearchOptions{WillCheckBingeAuth: true})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestIsQuestionDirty(t *testing.T) {
	f := newGraphFixture()

	q := &models.Question{Slug: "q", Question: "q", GuruTypeID: 1, Source: models.SourceUser}
	require.NoError(t, f.questions.Create(q))
	stored, err := f.questions.GetByID(q.ID)
	require.NoError(t, err)

	dirty, err := f.graph.IsQuestionDirty(stored)
	require.NoError(t, err)
	assert.False(t, dirty, "no data sources means never dirty")

	f.dataSources.latest[1] = time.Now().Add(time.Hour)
	dirty, err = f.graph.IsQuestionDirty(stored)
	require.NoError(t, err)
	assert.True(t, dirty)

	f.dataSources.latest[1] = stored.UpdatedAt.Add(-time.Hour)
	dirty, err = f.graph.IsQuestionDirty(stored)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestBingeOutdated(t *testing.T) {
	f := newGraphFixture()

	fresh := &models.Binge{LastUsed: time.Now().Add(-time.Minute)}
	stale := &models.Binge{LastUsed: time.Now().Add(-time.Hour)}

	assert.False(t, f.graph.BingeOutdated(fresh))
	assert.True(t, f.graph.BingeOutdated(stale))

	f.cfg.Env = "selfhosted"
	assert.False(t, f.graph.BingeOutdated(stale), "selfhosted never expires binges")
	f.cfg.Env = "cloud"
}

func TestValidateBingeFollowUp(t *testing.T) {
	f := newGraphFixture()
	guru := &models.GuruType{BaseModel: models.BaseModel{ID: 1}, Slug: "k8s"}

	binge, err := f.graph.CreateBinge(1, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, f.graph.ValidateBingeFollowUp(binge, nil, guru))

	otherGuru := &models.GuruType{BaseModel: models.BaseModel{ID: 2}, Slug: "other"}
	assert.ErrorIs(t, f.graph.ValidateBingeFollowUp(binge, nil, otherGuru), ErrNotFound)

	stale := &models.Binge{GuruTypeID: 1, LastUsed: time.Now().Add(-time.Hour)}
	assert.ErrorIs(t, f.graph.ValidateBingeFollowUp(stale, nil, guru), ErrBingeExpired)
}
