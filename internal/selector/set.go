package selector

import (
	"os"
	"reflect"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoginSelectors locate the elements of the login flow.
type LoginSelectors struct {
	IdentifierInput  Chain `yaml:"identifier_input"`
	NextButton       Chain `yaml:"next_button"`
	PhonePrompt      Chain `yaml:"phone_prompt"`
	PhoneInput       Chain `yaml:"phone_input"`
	PasswordInput    Chain `yaml:"password_input"`
	LoginButton      Chain `yaml:"login_button"`
	LoginError       Chain `yaml:"login_error"`
	UnknownChallenge Chain `yaml:"unknown_challenge"`
	HomeMarker       Chain `yaml:"home_marker"`
}

// PostSelectors locate a post container and its fields.
type PostSelectors struct {
	Container   Chain `yaml:"container"`
	Permalink   Chain `yaml:"permalink"`
	AuthorBlock Chain `yaml:"author_block"`
	Text        Chain `yaml:"text"`
	Timestamp   Chain `yaml:"timestamp"`
	Replies     Chain `yaml:"replies"`
	Reposts     Chain `yaml:"reposts"`
	Likes       Chain `yaml:"likes"`
	Views       Chain `yaml:"views"`
	Media       Chain `yaml:"media"`
}

// PageSelectors recognize what kind of page the browser is showing.
type PageSelectors struct {
	Timeline     Chain `yaml:"timeline"`
	EmptyState   Chain `yaml:"empty_state"`
	LoggedOut    Chain `yaml:"logged_out"`
	RateLimited  Chain `yaml:"rate_limited"`
	Interstitial Chain `yaml:"interstitial"`
}

// Set is the full selector configuration.
type Set struct {
	Login LoginSelectors `yaml:"login"`
	Post  PostSelectors  `yaml:"post"`
	Page  PageSelectors  `yaml:"page"`
}

// Default returns the built-in selectors for the platform's current markup.
func Default() Set {
	return Set{
		Login: LoginSelectors{
			IdentifierInput: Chain{
				ByCSS(`input[name='text'][autocomplete='username']`),
				ByCSS(`input.r-30o5oe.r-1dz5y72.r-13qz1uu`),
				ByCSS(`input[autocapitalize='sentences'][autocomplete='username']`),
				ByCSS(`input[type='text'][dir='auto']`),
			},
			NextButton: Chain{
				ByXPath(`//button[@role='button']//span[text()='Next']`),
				ByCSS(`button[role='button'][data-testid='ocfEnterTextNextButton']`),
				ByText("Next"),
			},
			PhonePrompt: Chain{
				ByText("Enter your phone number or username"),
				ByText("unusual login activity"),
			},
			PhoneInput: Chain{
				ByCSS(`input[data-testid='ocfEnterTextTextInput']`),
			},
			PasswordInput: Chain{
				ByCSS(`input[name='password'][type='password']`),
				ByCSS(`input[autocomplete='current-password']`),
			},
			LoginButton: Chain{
				ByCSS(`[data-testid='LoginForm_Login_Button']`),
				ByXPath(`//button[@role='button']//span[text()='Log in']`),
			},
			LoginError: Chain{
				ByText("Wrong password"),
				ByText("Could not log you in now"),
			},
			UnknownChallenge: Chain{
				ByText("Check your email"),
				ByText("Enter your verification code"),
				ByCSS(`iframe[src*='arkoselabs']`),
				ByCSS(`iframe#arkose_iframe`),
			},
			HomeMarker: Chain{
				ByCSS(`[data-testid="SideNav_AccountSwitcher_Button"]`),
				ByCSS(`[data-testid="SideNav_NewTweet_Button"]`),
				ByCSS(`[data-testid='SearchBox_Search_Input']`),
			},
		},
		Post: PostSelectors{
			Container: Chain{
				ByCSS(`article[data-testid="tweet"]`),
				ByCSS(`div[data-testid="cellInnerDiv"] article`),
				ByCSS(`article[role="article"]`),
			},
			Permalink: Chain{
				ByCSS(`a[href*="/status/"]:has(time)`),
				ByCSS(`a[data-testid="tweetText"]`),
				ByCSS(`a[href*="/status/"]`),
			},
			AuthorBlock: Chain{
				ByCSS(`[data-testid="User-Name"]`),
				ByCSS(`[data-testid="User-Names"]`),
			},
			Text: Chain{
				ByCSS(`[data-testid="tweetText"]`),
				ByCSS(`div[lang]`),
			},
			Timestamp: Chain{
				ByCSS(`time[datetime]`),
			},
			Replies: Chain{ByCSS(`[data-testid="reply"]`)},
			Reposts: Chain{ByCSS(`[data-testid="retweet"]`), ByCSS(`[data-testid="unretweet"]`)},
			Likes:   Chain{ByCSS(`[data-testid="like"]`), ByCSS(`[data-testid="unlike"]`)},
			Views:   Chain{ByCSS(`a[href$="/analytics"]`)},
			Media: Chain{
				ByCSS(`[data-testid="tweetPhoto"] img`),
				ByCSS(`[data-testid="videoPlayer"] video`),
				ByCSS(`[data-testid="tweetPhoto"] video`),
			},
		},
		Page: PageSelectors{
			Timeline: Chain{
				ByCSS(`[data-testid="ScrollSnap-List"]`),
				ByCSS(`[aria-label^="Timeline"]`),
				ByCSS(`[data-testid="primaryColumn"] section`),
			},
			EmptyState: Chain{
				ByCSS(`[data-testid="emptyState"]`),
				ByText("This account doesn’t exist"),
				ByText("No results for"),
			},
			LoggedOut: Chain{
				ByCSS(`[data-testid="loginButton"]`),
				ByCSS(`a[href="/login"]`),
				ByCSS(`[data-testid="login"]`),
			},
			RateLimited: Chain{
				ByText("Rate limit exceeded"),
				ByText("Something went wrong. Try reloading."),
			},
			Interstitial: Chain{
				ByCSS(`iframe[src*='arkoselabs']`),
				ByCSS(`#challenge-form`),
				ByCSS(`.cf-browser-verification`),
				ByText("Verify you are human"),
			},
		},
	}
}

// Load returns the default set with any chains from the YAML file at path
// replacing the defaults. An empty path returns the defaults.
func Load(path string) (Set, error) {
	set := Default()
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, eris.Wrapf(err, "selector: read %s", path)
	}
	override, err := Parse(data)
	if err != nil {
		return Set{}, eris.Wrapf(err, "selector: parse %s", path)
	}
	return set.Merge(override), nil
}

// Parse decodes a selector YAML document. Unset chains stay empty.
func Parse(data []byte) (Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return Set{}, eris.Wrap(err, "selector: unmarshal")
	}
	return set, nil
}

// Merge returns s with every non-empty chain of override replacing its
// counterpart.
func (s Set) Merge(override Set) Set {
	mergeChains(reflect.ValueOf(&s).Elem(), reflect.ValueOf(override))
	return s
}

var chainType = reflect.TypeOf(Chain(nil))

func mergeChains(dst, src reflect.Value) {
	for i := 0; i < dst.NumField(); i++ {
		df, sf := dst.Field(i), src.Field(i)
		switch {
		case df.Type() == chainType:
			if sf.Len() > 0 {
				df.Set(sf)
			}
		case df.Kind() == reflect.Struct:
			mergeChains(df, sf)
		}
	}
}

// Dump renders s as YAML.
func (s Set) Dump() ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "selector: marshal")
	}
	return out, nil
}
